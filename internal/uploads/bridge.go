package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

var (
	// ErrUploadFailed wraps any object-store failure. Partial uploads are not
	// retried; the caller re-invokes.
	ErrUploadFailed = errors.New("uploads: upload failed")

	errMissingClient  = errors.New("uploads: object store client is required")
	errMissingBucket  = errors.New("uploads: bucket name is required")
	errMissingOwnerID = errors.New("uploads: owner identifier is required")
	errEmptyFile      = errors.New("uploads: file payload is empty")
)

// File is one attachment payload received over the connection.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Attachment is the durable reference returned to the caller for inclusion in
// a comment's attachment list.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ObjectPutter is the slice of the minio client the bridge consumes.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// BridgeConfig describes the object-store target.
type BridgeConfig struct {
	Client    ObjectPutter
	Bucket    string
	PublicURL string
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Bridge streams attachment payloads to external object storage and hands
// back public URLs. Objects are keyed under the owner so per-user cleanup
// stays a prefix operation.
type Bridge struct {
	client    ObjectPutter
	bucket    string
	publicURL string
	clock     func() time.Time
	logger    *zap.Logger
}

// NewBridge constructs the upload bridge.
func NewBridge(cfg BridgeConfig) (*Bridge, error) {
	if cfg.Client == nil {
		return nil, errMissingClient
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errMissingBucket
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	publicURL := strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/")
	return &Bridge{
		client:    cfg.Client,
		bucket:    bucket,
		publicURL: publicURL,
		clock:     clock,
		logger:    logger,
	}, nil
}

// NewMinioClient dials the configured S3-compatible endpoint.
func NewMinioClient(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	return minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
}

// Upload stores one file and returns its attachment reference.
func (b *Bridge) Upload(ctx context.Context, ownerID string, file File) (Attachment, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return Attachment{}, errMissingOwnerID
	}
	if len(file.Data) == 0 {
		return Attachment{}, errEmptyFile
	}

	name := sanitizeFileName(file.Name)
	key := fmt.Sprintf("%s/%d-%s", ownerID, b.clock().UTC().UnixNano(), name)
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(file.Data), int64(len(file.Data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"x-amz-acl": "public-read"},
	})
	if err != nil {
		b.logger.Error("object store put failed",
			zap.String("bucket", b.bucket),
			zap.String("key", key),
			zap.Error(err))
		return Attachment{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	return Attachment{
		Name: name,
		URL:  fmt.Sprintf("%s/%s/%s", b.publicURL, b.bucket, key),
	}, nil
}

// UploadAll stores a batch of files, failing fast on the first error so the
// caller never receives a partial file reference for the failed upload.
func (b *Bridge) UploadAll(ctx context.Context, ownerID string, files []File) ([]Attachment, error) {
	attachments := make([]Attachment, 0, len(files))
	for _, file := range files {
		attachment, err := b.Upload(ctx, ownerID, file)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, attachment)
	}
	return attachments, nil
}

func sanitizeFileName(name string) string {
	name = path.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == "/" {
		return "attachment"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

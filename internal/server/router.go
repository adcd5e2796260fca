package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tesseralabs/tessera/backend/internal/access"
	"github.com/tesseralabs/tessera/backend/internal/activity"
	"github.com/tesseralabs/tessera/backend/internal/auth"
	"github.com/tesseralabs/tessera/backend/internal/comments"
	"github.com/tesseralabs/tessera/backend/internal/documents"
	"github.com/tesseralabs/tessera/backend/internal/notifications"
	"github.com/tesseralabs/tessera/backend/internal/rooms"
	"github.com/tesseralabs/tessera/backend/internal/uploads"
	"go.uber.org/zap"
)

var (
	errMissingVerifier      = errors.New("credential verifier dependency required")
	errMissingGate          = errors.New("authorization gate dependency required")
	errMissingRegistry      = errors.New("room registry dependency required")
	errMissingDocuments     = errors.New("documents service dependency required")
	errMissingComments      = errors.New("comments service dependency required")
	errMissingActivity      = errors.New("activity service dependency required")
	errMissingNotifications = errors.New("notifications service dependency required")
	errMissingUploader      = errors.New("upload bridge dependency required")
)

// CredentialVerifier authenticates the handshake credential.
type CredentialVerifier interface {
	Verify(credential string) (auth.Identity, error)
}

// ProjectGate authorizes an identity against a project's owning team.
type ProjectGate interface {
	CanAccessProject(ctx context.Context, identity auth.Identity, projectID string) error
}

// Uploader streams attachment payloads to external object storage.
type Uploader interface {
	UploadAll(ctx context.Context, ownerID string, files []uploads.File) ([]uploads.Attachment, error)
}

// Dependencies wires the gateway's collaborators.
type Dependencies struct {
	Verifier      CredentialVerifier
	Gate          ProjectGate
	Registry      *rooms.Registry
	Documents     *documents.Service
	Comments      *comments.Service
	Activity      *activity.Service
	Notifications *notifications.Service
	Uploader      Uploader
	Logger        *zap.Logger
}

// NewHTTPHandler builds the gin handler hosting the websocket endpoint, the
// pre-flight access predicate and the health probe.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Verifier == nil {
		return nil, errMissingVerifier
	}
	if deps.Gate == nil {
		return nil, errMissingGate
	}
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}
	if deps.Documents == nil {
		return nil, errMissingDocuments
	}
	if deps.Comments == nil {
		return nil, errMissingComments
	}
	if deps.Activity == nil {
		return nil, errMissingActivity
	}
	if deps.Notifications == nil {
		return nil, errMissingNotifications
	}
	if deps.Uploader == nil {
		return nil, errMissingUploader
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	gateway := newGateway(deps)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ws", gateway.handleConnection)
	router.GET("/projects/:projectId/access", gateway.handleAccessCheck)
	router.GET("/notifications", gateway.handleListNotifications)

	return router, nil
}

// handleAccessCheck is the pre-flight page-access predicate the CRUD service
// calls before a client ever opens the collaborative view. Same gate, same
// identity source as room joins.
func (g *Gateway) handleAccessCheck(c *gin.Context) {
	identity, err := g.verifier.Verify(requestCredential(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": authErrorCode(err)})
		return
	}

	err = g.gate.CanAccessProject(c.Request.Context(), identity, c.Param("projectId"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"allowed": true})
	case errors.Is(err, access.ErrProjectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"allowed": false, "error": accessErrorCode(err)})
	case errors.Is(err, access.ErrNoTeamAssigned), errors.Is(err, access.ErrNotATeamMember):
		c.JSON(http.StatusForbidden, gin.H{"allowed": false, "error": accessErrorCode(err)})
	default:
		g.logger.Error("access check failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"allowed": false, "error": "access_check_failed"})
	}
}

// handleListNotifications is the CRUD read path for the caller's inbox. Live
// delivery goes through the personal room; this endpoint catches up whatever
// arrived while offline.
func (g *Gateway) handleListNotifications(c *gin.Context) {
	identity, err := g.verifier.Verify(requestCredential(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": authErrorCode(err)})
		return
	}

	records, err := g.notifications.ListForUser(c.Request.Context(), identity.UserID)
	if err != nil {
		g.logger.Error("notification list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "notification_list_failed"})
		return
	}
	views := make([]notificationState, 0, len(records))
	for _, record := range records {
		views = append(views, notificationView(record))
	}
	c.JSON(http.StatusOK, gin.H{"notifications": views})
}

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/minio/minio-go/v7"
	"github.com/tesseralabs/tessera/backend/internal/access"
	"github.com/tesseralabs/tessera/backend/internal/activity"
	"github.com/tesseralabs/tessera/backend/internal/auth"
	"github.com/tesseralabs/tessera/backend/internal/comments"
	"github.com/tesseralabs/tessera/backend/internal/documents"
	"github.com/tesseralabs/tessera/backend/internal/notifications"
	"github.com/tesseralabs/tessera/backend/internal/rooms"
	"github.com/tesseralabs/tessera/backend/internal/server"
	"github.com/tesseralabs/tessera/backend/internal/uploads"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	gatewaySigningSecret = "integration-secret"
	gatewayIssuer        = "tessera-auth"
)

type memoryObjectStore struct {
	objects map[string][]byte
}

func (m *memoryObjectStore) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[bucketName+"/"+objectName] = data
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: int64(len(data))}, nil
}

type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TestCollaborationFlow exercises the full path one project team walks
// through: authenticate, join rooms, sync a canvas, discuss a task with an
// uploaded attachment, and watch the activity land in the audit feed.
func TestCollaborationFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:collaboration_flow?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&access.Team{}, &access.Project{}, &access.TeamMember{},
		&documents.Canvas{}, &documents.Sprint{}, &documents.Note{},
		&comments.Comment{}, &activity.Entry{}, &notifications.Notification{},
	); err != nil {
		testContext.Fatalf("failed to migrate: %v", err)
	}

	seed := []any{
		&access.Team{ID: "team-1", Name: "Core"},
		&access.Project{ID: "proj-1", TeamID: "team-1", Name: "Launch"},
		&access.TeamMember{TeamID: "team-1", UserID: "user-alice", Status: access.MemberStatusAccepted},
		&access.TeamMember{TeamID: "team-1", UserID: "user-bob", Status: access.MemberStatusAccepted},
	}
	for _, record := range seed {
		if err := db.Create(record).Error; err != nil {
			testContext.Fatalf("failed to seed record: %v", err)
		}
	}

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		SigningSecret: []byte(gatewaySigningSecret),
		Issuer:        gatewayIssuer,
	})
	if err != nil {
		testContext.Fatalf("failed to construct verifier: %v", err)
	}
	gate, err := access.NewGate(access.GateConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to construct gate: %v", err)
	}
	documentsService, err := documents.NewService(documents.ServiceConfig{Database: db, IDProvider: documents.NewUUIDProvider(), Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build documents service: %v", err)
	}
	commentsService, err := comments.NewService(comments.ServiceConfig{Database: db, IDProvider: comments.NewUUIDProvider(), Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build comments service: %v", err)
	}
	activityService, err := activity.NewService(activity.ServiceConfig{Database: db, IDProvider: activity.NewUUIDProvider(), Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build activity service: %v", err)
	}
	notificationsService, err := notifications.NewService(notifications.ServiceConfig{Database: db, IDProvider: notifications.NewUUIDProvider(), Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build notifications service: %v", err)
	}

	store := &memoryObjectStore{}
	bridge, err := uploads.NewBridge(uploads.BridgeConfig{
		Client:    store,
		Bucket:    "attachments",
		PublicURL: "https://files.example.com",
		Logger:    zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build upload bridge: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Verifier:      verifier,
		Gate:          gate,
		Registry:      rooms.NewRegistry(zap.NewNop()),
		Documents:     documentsService,
		Comments:      commentsService,
		Activity:      activityService,
		Notifications: notificationsService,
		Uploader:      bridge,
		Logger:        zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	alice := dialGateway(testContext, testServer.URL, mintToken(testContext, "user-alice", "alice@example.com"))
	bob := dialGateway(testContext, testServer.URL, mintToken(testContext, "user-bob", "bob@example.com"))

	// Both members join the same canvas room.
	writeFrame(testContext, alice, "join_canvas", map[string]any{"projectId": "proj-1", "pageId": "page-1"})
	writeFrame(testContext, bob, "join_canvas", map[string]any{"projectId": "proj-1", "pageId": "page-1"})
	time.Sleep(100 * time.Millisecond)

	// Alice saves; Bob converges on the persisted state.
	writeFrame(testContext, alice, "save_canvas", map[string]any{
		"projectId": "proj-1",
		"pageId":    "page-1",
		"nodes":     json.RawMessage(`[{"id":"task-1","title":"Ship it"}]`),
		"edges":     json.RawMessage(`[]`),
	})
	update := readFrame(testContext, bob)
	if update.Event != "canvas_updated" {
		testContext.Fatalf("expected canvas_updated, got %s", update.Event)
	}
	var canvas struct {
		Nodes json.RawMessage `json:"nodes"`
	}
	if err := json.Unmarshal(update.Payload, &canvas); err != nil {
		testContext.Fatalf("failed to decode canvas: %v", err)
	}
	if !strings.Contains(string(canvas.Nodes), "Ship it") {
		testContext.Fatalf("unexpected nodes %s", canvas.Nodes)
	}

	// Bob uploads an attachment and posts it in the task thread.
	writeFrame(testContext, bob, "upload_files", map[string]any{
		"files": []map[string]any{{"name": "design.png", "contentType": "image/png", "data": []byte{1, 2, 3}}},
	})
	uploaded := readFrame(testContext, bob)
	if uploaded.Event != "files_uploaded" {
		testContext.Fatalf("expected files_uploaded, got %s", uploaded.Event)
	}
	var attachments []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := json.Unmarshal(uploaded.Payload, &attachments); err != nil {
		testContext.Fatalf("failed to decode attachments: %v", err)
	}
	if len(attachments) != 1 || !strings.HasPrefix(attachments[0].URL, "https://files.example.com/attachments/user-bob/") {
		testContext.Fatalf("unexpected attachments %+v", attachments)
	}
	if len(store.objects) != 1 {
		testContext.Fatalf("expected one stored object, got %d", len(store.objects))
	}

	writeFrame(testContext, alice, "join_task_room", map[string]any{"taskId": "task-1"})
	if replay := readFrame(testContext, alice); replay.Event != "task_comments" {
		testContext.Fatalf("expected task_comments replay, got %s", replay.Event)
	}
	writeFrame(testContext, bob, "join_task_room", map[string]any{"taskId": "task-1"})
	if replay := readFrame(testContext, bob); replay.Event != "task_comments" {
		testContext.Fatalf("expected task_comments replay, got %s", replay.Event)
	}

	writeFrame(testContext, bob, "send_comment", map[string]any{
		"taskId":      "task-1",
		"content":     "design attached",
		"attachments": attachments,
	})
	for _, conn := range []*websocket.Conn{alice, bob} {
		created := readFrame(testContext, conn)
		if created.Event != "comment_created" {
			testContext.Fatalf("expected comment_created, got %s", created.Event)
		}
	}

	// The audit trail records the save and serves the recent feed.
	writeFrame(testContext, alice, "log_activity", map[string]any{
		"entityType": "canvas",
		"entityId":   "page-1",
		"action":     "updated",
		"changes":    json.RawMessage(`{"nodes":[0,1]}`),
	})
	if ack := readFrame(testContext, alice); ack.Event != "activity_logged" {
		testContext.Fatalf("expected activity_logged ack, got %s", ack.Event)
	}
	writeFrame(testContext, alice, "get_recent_activities", map[string]any{})
	feed := readFrame(testContext, alice)
	if feed.Event != "recent_activities" {
		testContext.Fatalf("expected recent_activities, got %s", feed.Event)
	}
	var entries []struct {
		EntityID string `json:"entityId"`
		Action   string `json:"action"`
	}
	if err := json.Unmarshal(feed.Payload, &entries); err != nil {
		testContext.Fatalf("failed to decode feed: %v", err)
	}
	if len(entries) != 1 || entries[0].EntityID != "page-1" || entries[0].Action != "updated" {
		testContext.Fatalf("unexpected feed %+v", entries)
	}
}

func mintToken(testContext *testing.T, subject, email string) string {
	testContext.Helper()
	claims := auth.AccessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    gatewayIssuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(gatewaySigningSecret))
	if err != nil {
		testContext.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func dialGateway(testContext *testing.T, serverURL, token string) *websocket.Conn {
	testContext.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		testContext.Fatalf("failed to dial gateway: %v", err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	testContext.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeFrame(testContext *testing.T, conn *websocket.Conn, event string, payload any) {
	testContext.Helper()
	encoded, err := json.Marshal(payload)
	if err != nil {
		testContext.Fatalf("failed to encode payload: %v", err)
	}
	if err := conn.WriteJSON(envelope{Event: event, Payload: encoded}); err != nil {
		testContext.Fatalf("failed to write frame: %v", err)
	}
}

func readFrame(testContext *testing.T, conn *websocket.Conn) envelope {
	testContext.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		testContext.Fatalf("failed to set read deadline: %v", err)
	}
	var frame envelope
	if err := conn.ReadJSON(&frame); err != nil {
		testContext.Fatalf("failed to read frame: %v", err)
	}
	return frame
}

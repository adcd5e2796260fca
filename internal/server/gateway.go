package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
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

// Gateway relays document mutations, comments, activity records and
// notifications between authenticated sessions and their rooms. Handshake
// authentication is the only connection-fatal check; every later failure is
// scoped to the operation that caused it.
type Gateway struct {
	verifier      CredentialVerifier
	gate          ProjectGate
	registry      *rooms.Registry
	documents     *documents.Service
	comments      *comments.Service
	activity      *activity.Service
	notifications *notifications.Service
	uploader      Uploader
	upgrader      websocket.Upgrader
	logger        *zap.Logger
}

func newGateway(deps Dependencies) *Gateway {
	return &Gateway{
		verifier:      deps.Verifier,
		gate:          deps.Gate,
		registry:      deps.Registry,
		documents:     deps.Documents,
		comments:      deps.Comments,
		activity:      deps.Activity,
		notifications: deps.Notifications,
		uploader:      deps.Uploader,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: deps.Logger,
	}
}

// handleConnection authenticates the handshake, upgrades the request, and runs
// the session's dispatch loop until the connection drops.
func (g *Gateway) handleConnection(c *gin.Context) {
	identity, err := g.verifier.Verify(requestCredential(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": authErrorCode(err)})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := newSession(uuid.NewString(), identity, conn)
	g.logger.Info("session connected",
		zap.String("session_id", session.SessionID()),
		zap.String("user_id", identity.UserID))

	g.readLoop(c.Request.Context(), session)
}

func (g *Gateway) readLoop(ctx context.Context, session *Session) {
	defer func() {
		g.registry.LeaveAll(session)
		session.Close()
		g.logger.Info("session disconnected",
			zap.String("session_id", session.SessionID()),
			zap.String("user_id", session.Identity().UserID))
	}()

	session.installKeepalive(keepAliveDeadline)

	for {
		var envelope Envelope
		if err := session.conn.ReadJSON(&envelope); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Debug("session read ended", zap.String("session_id", session.SessionID()), zap.Error(err))
			}
			return
		}
		_ = session.conn.SetReadDeadline(time.Now().Add(keepAliveDeadline))
		g.dispatch(ctx, session, envelope)
	}
}

// dispatch routes one inbound frame to its handler. Unknown events get a
// generic error reply instead of closing the connection.
func (g *Gateway) dispatch(ctx context.Context, session *Session, envelope Envelope) {
	switch envelope.Event {
	case EventJoinPersonalRoom:
		g.handleJoinPersonalRoom(session)
	case EventJoinCanvas:
		g.handleJoinCanvas(ctx, session, envelope.Payload)
	case EventJoinSprint:
		g.handleJoinSprint(ctx, session, envelope.Payload)
	case EventJoinNote:
		g.handleJoinNote(ctx, session, envelope.Payload)
	case EventJoinTaskRoom:
		g.handleJoinTaskRoom(ctx, session, envelope.Payload)
	case EventJoinEntityRoom:
		g.handleJoinEntityRoom(session, envelope.Payload)
	case EventJoinActivityRoom:
		g.registry.Join(rooms.ActivityKey(), session)
	case EventSaveCanvas:
		g.handleSaveCanvas(ctx, session, envelope.Payload)
	case EventSaveSprint:
		g.handleSaveSprint(ctx, session, envelope.Payload)
	case EventSaveNote:
		g.handleSaveNote(ctx, session, envelope.Payload)
	case EventSendComment:
		g.handleSendComment(ctx, session, envelope.Payload)
	case EventTogglePinMessage:
		g.handleTogglePin(ctx, session, envelope.Payload)
	case EventHideComment:
		g.handleHideComment(ctx, session, envelope.Payload)
	case EventGetTaskComments:
		g.handleGetTaskComments(ctx, session, envelope.Payload)
	case EventClearTaskComments:
		g.handleClearTaskComments(ctx, session, envelope.Payload)
	case EventUploadFiles:
		g.handleUploadFiles(ctx, session, envelope.Payload)
	case EventLogActivity:
		g.handleLogActivity(ctx, session, envelope.Payload)
	case EventGetRecentActivities:
		g.handleGetRecentActivities(ctx, session, envelope.Payload)
	case EventSendNotification:
		g.handleSendNotification(ctx, session, envelope.Payload)
	case EventMarkNotificationRead:
		g.handleMarkNotificationRead(ctx, session, envelope.Payload)
	default:
		g.reply(session, EventError, errorPayload{Message: "unknown event: " + envelope.Event})
	}
}

func (g *Gateway) handleJoinPersonalRoom(session *Session) {
	key, err := rooms.UserKey(session.Identity().UserID)
	if err != nil {
		g.reply(session, EventJoinError, errorPayload{Message: err.Error()})
		return
	}
	g.registry.Join(key, session)
}

func (g *Gateway) handleJoinCanvas(ctx context.Context, session *Session, raw json.RawMessage) {
	var payload joinCanvasPayload
	if !g.decode(session, EventJoinError, raw, &payload) {
		return
	}
	if !g.authorizeProject(ctx, session, payload.ProjectID, EventJoinError) {
		return
	}
	key, err := rooms.CanvasKey(payload.ProjectID, payload.PageID)
	if err != nil {
		g.reply(session, EventJoinError, errorPayload{Message: err.Error()})
		return
	}
	g.registry.Join(key, session)
}

func (g *Gateway) handleJoinSprint(ctx context.Context, session *Session, raw json.RawMessage) {
	var payload joinSprintPayload
	if !g.decode(session, EventJoinError, raw, &payload) {
		return
	}
	if !g.authorizeProject(ctx, session, payload.ProjectID, EventJoinError) {
		return
	}
	key, err := rooms.SprintKey(payload.ProjectID)
	if err != nil {
		g.reply(session, EventJoinError, errorPayload{Message: err.Error()})
		return
	}
	g.registry.Join(key, session)
}

func (g *Gateway) handleJoinNote(ctx context.Context, session *Session, raw json.RawMessage) {
	var payload joinNotePayload
	if !g.decode(session, EventJoinError, raw, &payload) {
		return
	}
	key, err := rooms.NoteKey(payload.NoteID)
	if err != nil {
		g.reply(session, EventJoinError, errorPayload{Message: err.Error()})
		return
	}

	// A note room may predate the note itself: the document is created on
	// first save. When the note exists and belongs to a project, the join
	// runs through the same gate as canvas and sprint rooms.
	note, err := g.documents.GetNote(ctx, payload.NoteID)
	switch {
	case errors.Is(err, documents.ErrNoteNotFound):
	case err != nil:
		g.reply(session, EventJoinError, errorPayload{Message: err.Error()})
		return
	case note.ProjectID != "":
		if !g.authorizeProject(ctx, session, note.ProjectID, EventJoinError) {
			return
		}
	}
	g.registry.Join(key, session)
}

func (g *Gateway) handleJoinTaskRoom(ctx context.Context, session *Session, raw json.RawMessage) {
	var payload joinTaskPayload
	if !g.decode(session, EventJoinError, raw, &payload) {
		return
	}
	key, err := rooms.TaskKey(payload.TaskID)
	if err != nil {
		g.reply(session, EventJoinError, errorPayload{Message: err.Error()})
		return
	}
	g.registry.Join(key, session)

	// History replay goes to the joining session only, filtered for it.
	history, err := g.comments.History(ctx, payload.TaskID, session.Identity().UserID)
	if err != nil {
		g.reply(session, EventCommentError, errorPayload{Message: err.Error()})
		return
	}
	g.reply(session, EventTaskComments, commentViews(history))
}

func (g *Gateway) handleJoinEntityRoom(session *Session, raw json.RawMessage) {
	var payload joinEntityPayload
	if !g.decode(session, EventJoinError, raw, &payload) {
		return
	}
	key, err := rooms.EntityKey(payload.EntityID)
	if err != nil {
		g.reply(session, EventJoinError, errorPayload{Message: err.Error()})
		return
	}
	g.registry.Join(key, session)
}

func (g *Gateway) handleSaveCanvas(ctx context.Context, session *Session, raw json.RawMessage) {
	var payload saveCanvasPayload
	if !g.decode(session, EventCanvasError, raw, &payload) {
		return
	}
	// Mutations run the same gate as room joins: a membership revoked
	// mid-session loses write access without waiting for a reconnect.
	if !g.authorizeProject(ctx, session, payload.ProjectID, EventCanvasError) {
		return
	}
	canvas, err := g.documents.SaveCanvas(ctx, payload.ProjectID, payload.PageID, string(payload.Nodes), string(payload.Edges))
	if err != nil {
		g.reply(session, EventCanvasError, errorPayload{Message: err.Error()})
		return
	}
	key, err := rooms.CanvasKey(canvas.ProjectID, canvas.PageID)
	if err != nil {
		g.reply(session, EventCanvasError, errorPayload{Message: err.Error()})
		return
	}
	g.registry.Broadcast(key, session, EventCanvasUpdated, canvasView(canvas))
}

func (g *Gateway) handleSaveSprint(ctx context.Context, session *Session, raw json.RawMessage) {
	var payload saveSprintPayload
	if !g.decode(session, EventSprintError, raw, &payload) {
		return
	}
	if !g.authorizeProject(ctx, session, payload.ProjectID, EventSprintError) {
		return
	}
	sprint, err := g.documents.SaveSprint(ctx, payload.ProjectID, string(payload.Nodes))
	if err != nil {
		g.reply(session, EventSprintError, errorPayload{Message: err.Error()})
		return
	}
	key, err := rooms.SprintKey(sprint.ProjectID)
	if err != nil {
		g.reply(session, EventSprintError, errorPayload{Message: err.Error()})
		return
	}
	g.registry.Broadcast(key, session, EventSprintUpdated, sprintView(sprint))
}

func (g *Gateway) handleSaveNote(ctx context.Context, session *Session, raw json.RawMessage) {
	var payload saveNotePayload
	if !g.decode(session, EventNoteError, raw, &payload) {
		return
	}
	// A note's owning project may come from the payload on first save or
	// from the stored record afterwards. Project-less notes stay ungated,
	// matching the room-join rules.
	projectID := strings.TrimSpace(payload.ProjectID)
	if projectID == "" {
		if stored, err := g.documents.GetNote(ctx, payload.NoteID); err == nil {
			projectID = stored.ProjectID
		}
	}
	if projectID != "" && !g.authorizeProject(ctx, session, projectID, EventNoteError) {
		return
	}
	note, err := g.documents.SaveNote(ctx, payload.NoteID, payload.ProjectID, payload.Content)
	if err != nil {
		g.reply(session, EventNoteError, errorPayload{Message: err.Error()})
		return
	}
	key, err := rooms.NoteKey(note.ID)
	if err != nil {
		g.reply(session, EventNoteError, errorPayload{Message: err.Error()})
		return
	}
	g.registry.Broadcast(key, session, EventNoteUpdated, noteView(note))
}

func (g *Gateway) handleSendComment(ctx context.Context, session *Session, raw json.RawMessage) {
	var payload sendCommentPayload
	if !g.decode(session, EventCommentError, raw, &payload) {
		return
	}
	attachments := make([]comments.Attachment, 0, len(payload.Attachments))
	for _, attachment := range payload.Attachments {
		attachments = append(attachments, comments.Attachment{Name: attachment.Name, URL: attachment.URL})
	}
	comment, err := g.comments.Send(ctx, payload.TaskID, session.Identity().UserID, payload.Content, attachments)
	if err != nil {
		g.reply(session, EventCommentError, errorPayload{Message: err.Error()})
		return
	}
	key, err := rooms.TaskKey(comment.TaskID)
	if err != nil {
		g.reply(session, EventCommentError, errorPayload{Message: err.Error()})
		return
	}
	// The author receives the broadcast too: the server-assigned id and
	// timestamp only exist in the canonical record.
	g.registry.BroadcastAll(key, EventCommentCreated, commentView(comment))
}

func (g *Gateway) handleTogglePin(ctx context.Context, session *Session, raw json.RawMessage) {
	var payload togglePinPayload
	if !g.decode(session, EventCommentError, raw, &payload) {
		return
	}
	comment, err := g.comments.TogglePin(ctx, payload.CommentID, session.Identity().UserID)
	if err != nil {
		g.reply(session, EventCommentError, errorPayload{Message: err.Error()})
		return
	}
	key, err := rooms.TaskKey(comment.TaskID)
	if err != nil {
		g.reply(session, EventCommentError, errorPayload{Message: err.Error()})
		return
	}
	g.registry.BroadcastAll(key, EventCommentPinned, commentView(comment))
}

func (g *Gateway) handleHideComment(ctx context.Context, session *Session, raw json.RawMessage) {
	var payload hideCommentPayload
	if !g.decode(session, EventCommentError, raw, &payload) {
		return
	}
	comment, err := g.comments.Hide(ctx, payload.CommentID, session.Identity().UserID)
	if err != nil {
		g.reply(session, EventCommentError, errorPayload{Message: err.Error()})
		return
	}
	// Hiding is per-viewer; nobody else's view changes.
	g.reply(session, EventCommentHidden, commentView(comment))
}

func (g *Gateway) handleGetTaskComments(ctx context.Context, session *Session, raw json.RawMessage) {
	var payload taskCommentsPayload
	if !g.decode(session, EventCommentError, raw, &payload) {
		return
	}
	history, err := g.comments.History(ctx, payload.TaskID, session.Identity().UserID)
	if err != nil {
		g.reply(session, EventCommentError, errorPayload{Message: err.Error()})
		return
	}
	g.reply(session, EventTaskComments, commentViews(history))
}

func (g *Gateway) handleClearTaskComments(ctx context.Context, session *Session, raw json.RawMessage) {
	var payload taskCommentsPayload
	if !g.decode(session, EventCommentError, raw, &payload) {
		return
	}
	if err := g.comments.Clear(ctx, payload.TaskID); err != nil {
		g.reply(session, EventCommentError, errorPayload{Message: err.Error()})
		return
	}
	key, err := rooms.TaskKey(payload.TaskID)
	if err != nil {
		g.reply(session, EventCommentError, errorPayload{Message: err.Error()})
		return
	}
	g.registry.BroadcastAll(key, EventTaskCommentsCleared, taskCommentsPayload{TaskID: payload.TaskID})
}

func (g *Gateway) handleUploadFiles(ctx context.Context, session *Session, raw json.RawMessage) {
	var payload uploadFilesPayload
	if !g.decode(session, EventUploadError, raw, &payload) {
		return
	}
	files := make([]uploads.File, 0, len(payload.Files))
	for _, file := range payload.Files {
		files = append(files, uploads.File{
			Name:        file.Name,
			ContentType: file.ContentType,
			Data:        file.Data,
		})
	}
	attachments, err := g.uploader.UploadAll(ctx, session.Identity().UserID, files)
	if err != nil {
		g.reply(session, EventUploadError, errorPayload{Message: err.Error()})
		return
	}
	g.reply(session, EventFilesUploaded, attachments)
}

func (g *Gateway) handleLogActivity(ctx context.Context, session *Session, raw json.RawMessage) {
	var payload logActivityPayload
	if !g.decode(session, EventActivityError, raw, &payload) {
		return
	}
	entry, err := g.activity.Log(ctx,
		session.Identity().UserID,
		activity.EntityType(payload.EntityType),
		payload.EntityID,
		activity.Action(payload.Action),
		string(payload.Changes))
	if err != nil {
		g.reply(session, EventActivityError, errorPayload{Message: err.Error()})
		return
	}

	view := activityView(entry)
	g.reply(session, EventActivityLogged, view)
	if key, err := rooms.EntityKey(entry.EntityID); err == nil {
		g.registry.Broadcast(key, session, EventActivityLogged, view)
	}
	g.registry.Broadcast(rooms.ActivityKey(), session, EventActivityLogged, view)
}

func (g *Gateway) handleGetRecentActivities(ctx context.Context, session *Session, raw json.RawMessage) {
	var payload recentActivitiesPayload
	if !g.decode(session, EventActivityError, raw, &payload) {
		return
	}
	entries, err := g.activity.Recent(ctx, activity.Filter{
		EntityType: activity.EntityType(payload.EntityType),
		EntityID:   payload.EntityID,
	}, payload.Limit)
	if err != nil {
		g.reply(session, EventActivityError, errorPayload{Message: err.Error()})
		return
	}
	g.reply(session, EventRecentActivities, activityViews(entries))
}

func (g *Gateway) handleSendNotification(ctx context.Context, session *Session, raw json.RawMessage) {
	var payload sendNotificationPayload
	if !g.decode(session, EventNotificationError, raw, &payload) {
		return
	}
	notification, err := g.notifications.Notify(ctx,
		session.Identity().UserID,
		payload.DestinationID,
		payload.Title,
		payload.Message,
		payload.Link)
	if err != nil {
		g.reply(session, EventNotificationError, errorPayload{Message: err.Error()})
		return
	}
	// Best effort: delivered now when the destination is connected, read
	// later through the CRUD path otherwise.
	if key, err := rooms.UserKey(notification.DestinationID); err == nil {
		g.registry.BroadcastAll(key, EventNotification, notificationView(notification))
	}
}

func (g *Gateway) handleMarkNotificationRead(ctx context.Context, session *Session, raw json.RawMessage) {
	var payload markNotificationReadPayload
	if !g.decode(session, EventNotificationError, raw, &payload) {
		return
	}
	notification, err := g.notifications.MarkRead(ctx, payload.NotificationID, session.Identity().UserID)
	if err != nil {
		g.reply(session, EventNotificationError, errorPayload{Message: err.Error()})
		return
	}
	g.reply(session, EventNotificationRead, notificationView(notification))
}

// authorizeProject runs the gate and reports a rejection on the given error
// event. The sentinel name doubles as the machine-readable code.
func (g *Gateway) authorizeProject(ctx context.Context, session *Session, projectID, errorEvent string) bool {
	err := g.gate.CanAccessProject(ctx, session.Identity(), projectID)
	if err == nil {
		return true
	}
	g.reply(session, errorEvent, errorPayload{
		Message: err.Error(),
		Code:    accessErrorCode(err),
	})
	return false
}

// requestCredential extracts the bearer credential for REST endpoints and the
// websocket handshake alike: Authorization header first, query token as the
// fallback for clients that cannot set headers.
func requestCredential(c *gin.Context) string {
	if credential := bearerToken(c.GetHeader("Authorization")); credential != "" {
		return credential
	}
	return c.Query("token")
}

func (g *Gateway) decode(session *Session, errorEvent string, raw json.RawMessage, target any) bool {
	if len(raw) == 0 {
		g.reply(session, errorEvent, errorPayload{Message: "missing payload"})
		return false
	}
	if err := json.Unmarshal(raw, target); err != nil {
		g.reply(session, errorEvent, errorPayload{Message: "malformed payload: " + err.Error()})
		return false
	}
	return true
}

func (g *Gateway) reply(session *Session, event string, payload any) {
	if err := session.Send(event, payload); err != nil {
		g.logger.Warn("session reply failed",
			zap.String("session_id", session.SessionID()),
			zap.String("event", event),
			zap.Error(err))
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func authErrorCode(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, auth.ErrExpiredCredential):
		return "expired_credential"
	default:
		return "invalid_credential"
	}
}

func accessErrorCode(err error) string {
	switch {
	case errors.Is(err, access.ErrProjectNotFound):
		return "project_not_found"
	case errors.Is(err, access.ErrNoTeamAssigned):
		return "no_team_assigned"
	case errors.Is(err, access.ErrNotATeamMember):
		return "not_a_team_member"
	default:
		return "access_denied"
	}
}

// keepAliveDeadline bounds how long the connection may go without any inbound
// traffic, pongs included. The write loop pings inside this window, so only a
// peer that stops answering is dropped.
const keepAliveDeadline = 60 * time.Second

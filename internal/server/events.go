package server

import "encoding/json"

// Client-to-server event names. The dispatch loop matches over this closed set.
const (
	EventJoinPersonalRoom     = "join_personal_room"
	EventJoinCanvas           = "join_canvas"
	EventJoinSprint           = "join_sprint"
	EventJoinNote             = "join_note"
	EventJoinTaskRoom         = "join_task_room"
	EventJoinEntityRoom       = "join_entity_room"
	EventJoinActivityRoom     = "join_activity_room"
	EventSaveCanvas           = "save_canvas"
	EventSaveSprint           = "save_sprint"
	EventSaveNote             = "save_note"
	EventSendComment          = "send_comment"
	EventTogglePinMessage     = "toggle_pin_message"
	EventHideComment          = "hide_comment"
	EventGetTaskComments      = "get_task_comments"
	EventClearTaskComments    = "clear_task_comments"
	EventUploadFiles          = "upload_files"
	EventLogActivity          = "log_activity"
	EventGetRecentActivities  = "get_recent_activities"
	EventSendNotification     = "send_notification"
	EventMarkNotificationRead = "mark_notification_read"
)

// Server-to-client event names.
const (
	EventCanvasUpdated       = "canvas_updated"
	EventSprintUpdated       = "sprint_updated"
	EventNoteUpdated         = "note_updated"
	EventCommentCreated      = "comment_created"
	EventCommentPinned       = "comment_pinned"
	EventCommentHidden       = "comment_hidden"
	EventTaskComments        = "task_comments"
	EventTaskCommentsCleared = "task_comments_cleared"
	EventFilesUploaded       = "files_uploaded"
	EventActivityLogged      = "activity_logged"
	EventRecentActivities    = "recent_activities"
	EventNotification        = "notification"
	EventNotificationRead    = "notification_read"
)

// Error event names, each scoped to the operation that failed. Only a
// handshake auth failure terminates the connection; these leave it usable.
const (
	EventError             = "error"
	EventJoinError         = "join_error"
	EventCanvasError       = "canvas_error"
	EventSprintError       = "sprint_error"
	EventNoteError         = "note_error"
	EventCommentError      = "comment_error"
	EventUploadError       = "upload_error"
	EventActivityError     = "activity_error"
	EventNotificationError = "notification_error"
)

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type joinCanvasPayload struct {
	ProjectID string `json:"projectId"`
	PageID    string `json:"pageId"`
}

type joinSprintPayload struct {
	ProjectID string `json:"projectId"`
}

type joinNotePayload struct {
	NoteID string `json:"noteId"`
}

type joinTaskPayload struct {
	TaskID string `json:"taskId"`
}

type joinEntityPayload struct {
	EntityID string `json:"entityId"`
}

type saveCanvasPayload struct {
	ProjectID string          `json:"projectId"`
	PageID    string          `json:"pageId"`
	Nodes     json.RawMessage `json:"nodes"`
	Edges     json.RawMessage `json:"edges"`
}

type saveSprintPayload struct {
	ProjectID string          `json:"projectId"`
	Nodes     json.RawMessage `json:"nodes"`
}

type saveNotePayload struct {
	NoteID    string `json:"noteId"`
	ProjectID string `json:"projectId"`
	Content   string `json:"content"`
}

type sendCommentPayload struct {
	TaskID      string              `json:"taskId"`
	Content     string              `json:"content"`
	Attachments []attachmentPayload `json:"attachments"`
}

type attachmentPayload struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type togglePinPayload struct {
	CommentID string `json:"commentId"`
}

type hideCommentPayload struct {
	CommentID string `json:"commentId"`
}

type taskCommentsPayload struct {
	TaskID string `json:"taskId"`
}

type uploadFilesPayload struct {
	Files []uploadFilePayload `json:"files"`
}

type uploadFilePayload struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

type logActivityPayload struct {
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Action     string          `json:"action"`
	Changes    json.RawMessage `json:"changes"`
}

type recentActivitiesPayload struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Limit      int    `json:"limit"`
}

type sendNotificationPayload struct {
	DestinationID string `json:"destinationId"`
	Title         string `json:"title"`
	Message       string `json:"message"`
	Link          string `json:"link"`
}

type markNotificationReadPayload struct {
	NotificationID string `json:"notificationId"`
}

package server

import (
	"encoding/json"
	"time"

	"github.com/tesseralabs/tessera/backend/internal/activity"
	"github.com/tesseralabs/tessera/backend/internal/comments"
	"github.com/tesseralabs/tessera/backend/internal/documents"
	"github.com/tesseralabs/tessera/backend/internal/notifications"
)

// The convergence pushes carry the canonical persisted fields, never the
// client's raw input, so every viewer settles on the value the store holds.

type canvasState struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"projectId"`
	PageID    string          `json:"pageId"`
	Nodes     json.RawMessage `json:"nodes"`
	Edges     json.RawMessage `json:"edges"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func canvasView(canvas documents.Canvas) canvasState {
	return canvasState{
		ID:        canvas.ID,
		ProjectID: canvas.ProjectID,
		PageID:    canvas.PageID,
		Nodes:     json.RawMessage(canvas.NodesJSON),
		Edges:     json.RawMessage(canvas.EdgesJSON),
		UpdatedAt: canvas.UpdatedAt,
	}
}

type sprintState struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"projectId"`
	Nodes     json.RawMessage `json:"nodes"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func sprintView(sprint documents.Sprint) sprintState {
	return sprintState{
		ID:        sprint.ID,
		ProjectID: sprint.ProjectID,
		Nodes:     json.RawMessage(sprint.NodesJSON),
		UpdatedAt: sprint.UpdatedAt,
	}
}

type noteState struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId,omitempty"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func noteView(note documents.Note) noteState {
	return noteState{
		ID:        note.ID,
		ProjectID: note.ProjectID,
		Content:   note.Content,
		UpdatedAt: note.UpdatedAt,
	}
}

type commentState struct {
	ID          string              `json:"id"`
	TaskID      string              `json:"taskId"`
	AuthorID    string              `json:"authorId"`
	Content     string              `json:"content"`
	Attachments []attachmentPayload `json:"attachments"`
	Pinned      bool                `json:"pinned"`
	PinnedBy    string              `json:"pinnedBy,omitempty"`
	PinnedAt    *time.Time          `json:"pinnedAt,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
}

func commentView(comment comments.Comment) commentState {
	attachments := make([]attachmentPayload, 0)
	for _, attachment := range comment.Attachments() {
		attachments = append(attachments, attachmentPayload{Name: attachment.Name, URL: attachment.URL})
	}
	return commentState{
		ID:          comment.ID,
		TaskID:      comment.TaskID,
		AuthorID:    comment.AuthorID,
		Content:     comment.Content,
		Attachments: attachments,
		Pinned:      comment.Pinned,
		PinnedBy:    comment.PinnedBy,
		PinnedAt:    comment.PinnedAt,
		CreatedAt:   comment.CreatedAt,
	}
}

func commentViews(records []comments.Comment) []commentState {
	views := make([]commentState, 0, len(records))
	for _, record := range records {
		views = append(views, commentView(record))
	}
	return views
}

type activityState struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actorId"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Action     string          `json:"action"`
	Changes    json.RawMessage `json:"changes"`
	CreatedAt  time.Time       `json:"createdAt"`
}

func activityView(entry activity.Entry) activityState {
	return activityState{
		ID:         entry.ID,
		ActorID:    entry.ActorID,
		EntityType: string(entry.EntityType),
		EntityID:   entry.EntityID,
		Action:     string(entry.Action),
		Changes:    json.RawMessage(entry.ChangesJSON),
		CreatedAt:  entry.CreatedAt,
	}
}

func activityViews(entries []activity.Entry) []activityState {
	views := make([]activityState, 0, len(entries))
	for _, entry := range entries {
		views = append(views, activityView(entry))
	}
	return views
}

type notificationState struct {
	ID            string    `json:"id"`
	SourceID      string    `json:"sourceId"`
	DestinationID string    `json:"destinationId"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	Link          string    `json:"link,omitempty"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"createdAt"`
}

func notificationView(notification notifications.Notification) notificationState {
	return notificationState{
		ID:            notification.ID,
		SourceID:      notification.SourceID,
		DestinationID: notification.DestinationID,
		Title:         notification.Title,
		Message:       notification.Message,
		Link:          notification.Link,
		Read:          notification.Read,
		CreatedAt:     notification.CreatedAt,
	}
}

package rooms

import (
	"errors"
	"fmt"
	"strings"
)

// Kind enumerates the room families the gateway multiplexes over one connection.
type Kind string

const (
	KindCanvas   Kind = "canvas"
	KindSprint   Kind = "sprint"
	KindNote     Kind = "note"
	KindTask     Kind = "task"
	KindEntity   Kind = "entity"
	KindActivity Kind = "activity"
	KindUser     Kind = "user"
)

// ErrInvalidKey indicates a room key was constructed from empty identifiers.
var ErrInvalidKey = errors.New("rooms: invalid room key")

// Key identifies one multicast group. Keys are built at the boundary from the
// identifiers a handler already holds; they are never parsed back apart.
type Key struct {
	Kind        Kind
	ProjectID   string
	SecondaryID string
}

// NewKey validates the identifiers and returns a Key.
func NewKey(kind Kind, projectID, secondaryID string) (Key, error) {
	projectID = strings.TrimSpace(projectID)
	secondaryID = strings.TrimSpace(secondaryID)
	if kind == "" {
		return Key{}, fmt.Errorf("%w: kind required", ErrInvalidKey)
	}
	if projectID == "" && secondaryID == "" {
		return Key{}, fmt.Errorf("%w: identifier required", ErrInvalidKey)
	}
	return Key{Kind: kind, ProjectID: projectID, SecondaryID: secondaryID}, nil
}

// CanvasKey addresses the canvas room for a page within a project.
func CanvasKey(projectID, pageID string) (Key, error) {
	if strings.TrimSpace(pageID) == "" {
		return Key{}, fmt.Errorf("%w: page identifier required", ErrInvalidKey)
	}
	return NewKey(KindCanvas, projectID, pageID)
}

// SprintKey addresses the sprint-board room for a project.
func SprintKey(projectID string) (Key, error) {
	return NewKey(KindSprint, projectID, "")
}

// NoteKey addresses the room for a single collaborative note.
func NoteKey(noteID string) (Key, error) {
	return NewKey(KindNote, "", noteID)
}

// TaskKey addresses the comment thread room for a task.
func TaskKey(taskID string) (Key, error) {
	return NewKey(KindTask, "", taskID)
}

// EntityKey addresses the per-entity activity room.
func EntityKey(entityID string) (Key, error) {
	return NewKey(KindEntity, "", entityID)
}

// ActivityKey addresses the global activity feed room.
func ActivityKey() Key {
	return Key{Kind: KindActivity, SecondaryID: "global"}
}

// UserKey addresses a user's personal notification room.
func UserKey(userID string) (Key, error) {
	return NewKey(KindUser, "", userID)
}

// String renders the key for map indexing and log fields.
func (k Key) String() string {
	switch {
	case k.ProjectID != "" && k.SecondaryID != "":
		return fmt.Sprintf("%s:%s:%s", k.Kind, k.ProjectID, k.SecondaryID)
	case k.ProjectID != "":
		return fmt.Sprintf("%s:%s", k.Kind, k.ProjectID)
	default:
		return fmt.Sprintf("%s:%s", k.Kind, k.SecondaryID)
	}
}

package activity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// EntityType enumerates the entities the audit trail covers.
type EntityType string

const (
	EntityProject EntityType = "project"
	EntityPage    EntityType = "page"
	EntityCanvas  EntityType = "canvas"
	EntityNote    EntityType = "note"
	EntityTeam    EntityType = "team"
	EntitySprint  EntityType = "sprint"
)

// Action enumerates the recordable mutations.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

var (
	// ErrInvalidEntityType indicates a value outside the fixed enumeration.
	ErrInvalidEntityType = errors.New("activity: invalid entity type")
	// ErrInvalidAction indicates a value outside created/updated/deleted.
	ErrInvalidAction = errors.New("activity: invalid action")
)

// ParseEntityType validates raw input against the enumeration.
func ParseEntityType(raw string) (EntityType, error) {
	switch EntityType(strings.ToLower(strings.TrimSpace(raw))) {
	case EntityProject:
		return EntityProject, nil
	case EntityPage:
		return EntityPage, nil
	case EntityCanvas:
		return EntityCanvas, nil
	case EntityNote:
		return EntityNote, nil
	case EntityTeam:
		return EntityTeam, nil
	case EntitySprint:
		return EntitySprint, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEntityType, raw)
	}
}

// ParseAction validates raw input against the enumeration.
func ParseAction(raw string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionCreated:
		return ActionCreated, nil
	case ActionUpdated:
		return ActionUpdated, nil
	case ActionDeleted:
		return ActionDeleted, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, raw)
	}
}

// Entry is one immutable audit record. The service exposes no update or
// delete path; once appended an entry never changes.
type Entry struct {
	ID          string     `gorm:"column:id;primaryKey;size:190;not null"`
	ActorID     string     `gorm:"column:actor_id;size:190;not null"`
	EntityType  EntityType `gorm:"column:entity_type;size:32;not null;index:idx_activity_entity,priority:1"`
	EntityID    string     `gorm:"column:entity_id;size:190;not null;index:idx_activity_entity,priority:2"`
	Action      Action     `gorm:"column:action;size:32;not null"`
	ChangesJSON string     `gorm:"column:changes_json;type:text;not null;default:'{}'"`
	CreatedAt   time.Time  `gorm:"column:created_at;index"`
}

// TableName exposes the table backing activity entries.
func (Entry) TableName() string {
	return "activity_entries"
}

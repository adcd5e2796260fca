package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultRecentLimit = 50

var (
	errMissingDatabase   = errors.New("activity: database handle is required")
	errMissingIDProvider = errors.New("activity: id provider is required")
	errMissingActorID    = errors.New("activity: actor identifier is required")
	errMissingEntityID   = errors.New("activity: entity identifier is required")
)

// IDProvider issues identifiers for new entries.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the activity log.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service appends immutable audit records and serves the recent-activity feed.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the activity log service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Log appends one audit record. Entity type and action are validated against
// their enumerations before anything touches the store.
func (s *Service) Log(ctx context.Context, actorID string, entityType EntityType, entityID string, action Action, changesJSON string) (Entry, error) {
	actorID = strings.TrimSpace(actorID)
	entityID = strings.TrimSpace(entityID)
	if actorID == "" {
		return Entry{}, errMissingActorID
	}
	if entityID == "" {
		return Entry{}, errMissingEntityID
	}
	if _, err := ParseEntityType(string(entityType)); err != nil {
		return Entry{}, err
	}
	if _, err := ParseAction(string(action)); err != nil {
		return Entry{}, err
	}

	entryID, err := s.idProvider.NewID()
	if err != nil {
		return Entry{}, fmt.Errorf("activity: id generation failed: %w", err)
	}
	if strings.TrimSpace(changesJSON) == "" {
		changesJSON = "{}"
	}

	entry := Entry{
		ID:          entryID,
		ActorID:     actorID,
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		ChangesJSON: changesJSON,
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Error("activity insert failed",
			zap.String("entity_type", string(entityType)),
			zap.String("entity_id", entityID),
			zap.Error(err))
		return Entry{}, fmt.Errorf("activity: insert failed: %w", err)
	}
	return entry, nil
}

// Filter narrows the recent feed to one entity. Zero value means no filter.
type Filter struct {
	EntityType EntityType
	EntityID   string
}

// Recent returns the newest entries first, optionally filtered. Pure read.
func (s *Service) Recent(ctx context.Context, filter Filter, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	query := s.db.WithContext(ctx).Model(&Entry{})
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if strings.TrimSpace(filter.EntityID) != "" {
		query = query.Where("entity_id = ?", strings.TrimSpace(filter.EntityID))
	}

	var entries []Entry
	if err := query.Order("created_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("activity: recent query failed: %w", err)
	}
	return entries, nil
}

package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotificationNotFound indicates the id does not resolve to a record.
	ErrNotificationNotFound = errors.New("notifications: notification not found")

	errMissingDatabase      = errors.New("notifications: database handle is required")
	errMissingIDProvider    = errors.New("notifications: id provider is required")
	errMissingSourceID      = errors.New("notifications: source identifier is required")
	errMissingDestinationID = errors.New("notifications: destination identifier is required")
)

// Notification is a directed message from one user to another. The gateway
// pushes it into the destination's personal room when they are connected; the
// record persists either way for later retrieval.
type Notification struct {
	ID            string    `gorm:"column:id;primaryKey;size:190;not null"`
	SourceID      string    `gorm:"column:source_id;size:190;not null"`
	DestinationID string    `gorm:"column:destination_id;size:190;not null;index:idx_notifications_dest_created,priority:1"`
	Title         string    `gorm:"column:title;size:320;not null"`
	Message       string    `gorm:"column:message;type:text"`
	Link          string    `gorm:"column:link;size:512"`
	Read          bool      `gorm:"column:read;not null;default:false"`
	CreatedAt     time.Time `gorm:"column:created_at;index:idx_notifications_dest_created,priority:2"`
}

// TableName exposes the table backing notifications.
func (Notification) TableName() string {
	return "notifications"
}

// IDProvider issues identifiers for new notifications.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the notification service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service persists notifications and serves the per-user read path.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the notification service.
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

// Notify persists a notification and returns the stored record for delivery.
func (s *Service) Notify(ctx context.Context, sourceID, destinationID, title, message, link string) (Notification, error) {
	sourceID = strings.TrimSpace(sourceID)
	destinationID = strings.TrimSpace(destinationID)
	if sourceID == "" {
		return Notification{}, errMissingSourceID
	}
	if destinationID == "" {
		return Notification{}, errMissingDestinationID
	}

	notificationID, err := s.idProvider.NewID()
	if err != nil {
		return Notification{}, fmt.Errorf("notifications: id generation failed: %w", err)
	}

	notification := Notification{
		ID:            notificationID,
		SourceID:      sourceID,
		DestinationID: destinationID,
		Title:         strings.TrimSpace(title),
		Message:       message,
		Link:          strings.TrimSpace(link),
		CreatedAt:     s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		s.logger.Error("notification insert failed",
			zap.String("destination_id", destinationID),
			zap.Error(err))
		return Notification{}, fmt.Errorf("notifications: insert failed: %w", err)
	}
	return notification, nil
}

// MarkRead flips the read flag, the only mutation a notification supports.
func (s *Service) MarkRead(ctx context.Context, notificationID, userID string) (Notification, error) {
	notificationID = strings.TrimSpace(notificationID)
	userID = strings.TrimSpace(userID)

	result := s.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND destination_id = ?", notificationID, userID).
		Update("read", true)
	if result.Error != nil {
		return Notification{}, fmt.Errorf("notifications: read update failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return Notification{}, ErrNotificationNotFound
	}

	var notification Notification
	if err := s.db.WithContext(ctx).Where("id = ?", notificationID).Take(&notification).Error; err != nil {
		return Notification{}, fmt.Errorf("notifications: readback failed: %w", err)
	}
	return notification, nil
}

// ListForUser serves the CRUD read path for a user's notifications.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Notification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errMissingDestinationID
	}

	var notifications []Notification
	if err := s.db.WithContext(ctx).
		Where("destination_id = ?", userID).
		Order("created_at DESC").
		Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("notifications: list query failed: %w", err)
	}
	return notifications, nil
}

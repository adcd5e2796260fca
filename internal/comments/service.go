package comments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrCommentNotFound indicates the comment id does not resolve to a record.
	ErrCommentNotFound = errors.New("comments: comment not found")

	errMissingDatabase   = errors.New("comments: database handle is required")
	errMissingIDProvider = errors.New("comments: id provider is required")
	errMissingTaskID     = errors.New("comments: task identifier is required")
	errMissingAuthorID   = errors.New("comments: author identifier is required")
	errMissingUserID     = errors.New("comments: user identifier is required")
	errMissingContent    = errors.New("comments: content is required")
)

// IDProvider issues identifiers for new comments.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the comment thread service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service manages threaded task comments: append-only sends, pin toggling,
// per-viewer hiding, bulk clearing and history replay.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the comment service.
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

// Send appends a comment to the task's thread and returns the stored record.
func (s *Service) Send(ctx context.Context, taskID, authorID, content string, attachments []Attachment) (Comment, error) {
	taskID = strings.TrimSpace(taskID)
	authorID = strings.TrimSpace(authorID)
	if taskID == "" {
		return Comment{}, errMissingTaskID
	}
	if authorID == "" {
		return Comment{}, errMissingAuthorID
	}
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return Comment{}, errMissingContent
	}

	commentID, err := s.idProvider.NewID()
	if err != nil {
		return Comment{}, fmt.Errorf("comments: id generation failed: %w", err)
	}
	attachmentsJSON, err := encodeAttachments(attachments)
	if err != nil {
		return Comment{}, fmt.Errorf("comments: attachment encoding failed: %w", err)
	}

	comment := Comment{
		ID:              commentID,
		TaskID:          taskID,
		AuthorID:        authorID,
		Content:         content,
		AttachmentsJSON: attachmentsJSON,
		HiddenForJSON:   "[]",
		CreatedAt:       s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		s.logger.Error("comment insert failed", zap.String("task_id", taskID), zap.Error(err))
		return Comment{}, fmt.Errorf("comments: insert failed: %w", err)
	}
	return comment, nil
}

// TogglePin flips the pin flag. Pinning records who pinned and when; unpinning
// clears both, so at most one pinnedBy value exists at a time.
func (s *Service) TogglePin(ctx context.Context, commentID, userID string) (Comment, error) {
	commentID = strings.TrimSpace(commentID)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Comment{}, errMissingUserID
	}

	var toggled Comment
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comment Comment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", commentID).
			Take(&comment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCommentNotFound
		}
		if err != nil {
			return fmt.Errorf("comments: select failed: %w", err)
		}

		if comment.Pinned {
			comment.Pinned = false
			comment.PinnedBy = ""
			comment.PinnedAt = nil
		} else {
			pinnedAt := s.clock().UTC()
			comment.Pinned = true
			comment.PinnedBy = userID
			comment.PinnedAt = &pinnedAt
		}

		updates := map[string]interface{}{
			"pinned":    comment.Pinned,
			"pinned_by": comment.PinnedBy,
			"pinned_at": comment.PinnedAt,
		}
		if err := tx.Model(&Comment{}).Where("id = ?", commentID).Updates(updates).Error; err != nil {
			return fmt.Errorf("comments: pin update failed: %w", err)
		}
		toggled = comment
		return nil
	})
	if txErr != nil {
		return Comment{}, txErr
	}
	return toggled, nil
}

// Hide appends the viewer to the comment's exclusion list. The record stays in
// the store; history replays for that viewer simply skip it. Hiding is
// permanent and idempotent.
func (s *Service) Hide(ctx context.Context, commentID, viewerID string) (Comment, error) {
	commentID = strings.TrimSpace(commentID)
	viewerID = strings.TrimSpace(viewerID)
	if viewerID == "" {
		return Comment{}, errMissingUserID
	}

	var hidden Comment
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comment Comment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", commentID).
			Take(&comment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCommentNotFound
		}
		if err != nil {
			return fmt.Errorf("comments: select failed: %w", err)
		}

		if comment.HiddenForViewer(viewerID) {
			hidden = comment
			return nil
		}

		hiddenForJSON, err := encodeHiddenFor(append(comment.HiddenFor(), viewerID))
		if err != nil {
			return fmt.Errorf("comments: exclusion encoding failed: %w", err)
		}
		comment.HiddenForJSON = hiddenForJSON
		if err := tx.Model(&Comment{}).Where("id = ?", commentID).
			Update("hidden_for_json", hiddenForJSON).Error; err != nil {
			return fmt.Errorf("comments: exclusion update failed: %w", err)
		}
		hidden = comment
		return nil
	})
	if txErr != nil {
		return Comment{}, txErr
	}
	return hidden, nil
}

// Clear bulk-deletes every comment of a task.
func (s *Service) Clear(ctx context.Context, taskID string) error {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return errMissingTaskID
	}
	if err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&Comment{}).Error; err != nil {
		s.logger.Error("comment clear failed", zap.String("task_id", taskID), zap.Error(err))
		return fmt.Errorf("comments: clear failed: %w", err)
	}
	return nil
}

// History returns the task's comments visible to the viewer, ordered by
// creation time. Used for the replay pushed to a session joining a task room.
func (s *Service) History(ctx context.Context, taskID, viewerID string) ([]Comment, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, errMissingTaskID
	}

	var stored []Comment
	if err := s.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC").
		Find(&stored).Error; err != nil {
		return nil, fmt.Errorf("comments: history query failed: %w", err)
	}

	visible := make([]Comment, 0, len(stored))
	for _, comment := range stored {
		if comment.HiddenForViewer(strings.TrimSpace(viewerID)) {
			continue
		}
		visible = append(visible, comment)
	}
	return visible, nil
}

package documents

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
	// ErrNoteNotFound indicates a note id does not resolve to a persisted note.
	ErrNoteNotFound = errors.New("documents: note not found")

	errMissingDatabase   = errors.New("documents: database handle is required")
	errMissingIDProvider = errors.New("documents: id provider is required")
	errMissingProjectID  = errors.New("documents: project identifier is required")
	errMissingPageID     = errors.New("documents: page identifier is required")
	errMissingNoteID     = errors.New("documents: note identifier is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a dotted operation code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "documents.service.new"
	opSaveCanvas = "documents.save_canvas"
	opSaveSprint = "documents.save_sprint"
	opSaveNote   = "documents.save_note"
	opGetCanvas  = "documents.get_canvas"
	opGetSprint  = "documents.get_sprint"
	opGetNote    = "documents.get_note"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues identifiers for newly created documents.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the document sync engine.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service implements the join/save/broadcast persistence side for the three
// document kinds. Every save is a wholesale replace of the mutable fields:
// last writer wins, resolved by write completion order at the store.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the document sync engine.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// SaveCanvas upserts the canvas keyed by (projectID, pageID) and returns the
// canonical persisted record for broadcast. Concurrent saves to the same page
// serialize inside the transaction; the post-write value is read back rather
// than echoing the caller's input.
func (s *Service) SaveCanvas(ctx context.Context, projectID, pageID, nodesJSON, edgesJSON string) (Canvas, error) {
	projectID = strings.TrimSpace(projectID)
	pageID = strings.TrimSpace(pageID)
	if projectID == "" {
		return Canvas{}, newServiceError(opSaveCanvas, "missing_project_id", errMissingProjectID)
	}
	if pageID == "" {
		return Canvas{}, newServiceError(opSaveCanvas, "missing_page_id", errMissingPageID)
	}

	var persisted Canvas
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Canvas
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("project_id = ? AND page_id = ?", projectID, pageID).
			Take(&existing).Error
		now := s.clock().UTC()
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			canvasID, idErr := s.idProvider.NewID()
			if idErr != nil {
				return newServiceError(opSaveCanvas, "id_generation_failed", idErr)
			}
			existing = Canvas{
				ID:        canvasID,
				ProjectID: projectID,
				PageID:    pageID,
				NodesJSON: normalizeJSONArray(nodesJSON),
				EdgesJSON: normalizeJSONArray(edgesJSON),
				UpdatedAt: now,
			}
			if createErr := tx.Create(&existing).Error; createErr != nil {
				return newServiceError(opSaveCanvas, "create_failed", createErr)
			}
		case err != nil:
			return newServiceError(opSaveCanvas, "select_failed", err)
		default:
			existing.NodesJSON = normalizeJSONArray(nodesJSON)
			existing.EdgesJSON = normalizeJSONArray(edgesJSON)
			existing.UpdatedAt = now
			if saveErr := tx.Save(&existing).Error; saveErr != nil {
				return newServiceError(opSaveCanvas, "save_failed", saveErr)
			}
		}
		persisted = existing
		return nil
	})
	if txErr != nil {
		s.logError(opSaveCanvas, txErr, zap.String("project_id", projectID), zap.String("page_id", pageID))
		return Canvas{}, txErr
	}
	return persisted, nil
}

// SaveSprint upserts the sprint board keyed by projectID.
func (s *Service) SaveSprint(ctx context.Context, projectID, nodesJSON string) (Sprint, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return Sprint{}, newServiceError(opSaveSprint, "missing_project_id", errMissingProjectID)
	}

	var persisted Sprint
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Sprint
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("project_id = ?", projectID).
			Take(&existing).Error
		now := s.clock().UTC()
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			sprintID, idErr := s.idProvider.NewID()
			if idErr != nil {
				return newServiceError(opSaveSprint, "id_generation_failed", idErr)
			}
			existing = Sprint{
				ID:        sprintID,
				ProjectID: projectID,
				NodesJSON: normalizeJSONArray(nodesJSON),
				UpdatedAt: now,
			}
			if createErr := tx.Create(&existing).Error; createErr != nil {
				return newServiceError(opSaveSprint, "create_failed", createErr)
			}
		case err != nil:
			return newServiceError(opSaveSprint, "select_failed", err)
		default:
			existing.NodesJSON = normalizeJSONArray(nodesJSON)
			existing.UpdatedAt = now
			if saveErr := tx.Save(&existing).Error; saveErr != nil {
				return newServiceError(opSaveSprint, "save_failed", saveErr)
			}
		}
		persisted = existing
		return nil
	})
	if txErr != nil {
		s.logError(opSaveSprint, txErr, zap.String("project_id", projectID))
		return Sprint{}, txErr
	}
	return persisted, nil
}

// SaveNote replaces the content of the note keyed by noteID, creating it on
// first save. The optional projectID is only stamped on create.
func (s *Service) SaveNote(ctx context.Context, noteID, projectID, content string) (Note, error) {
	noteID = strings.TrimSpace(noteID)
	if noteID == "" {
		return Note{}, newServiceError(opSaveNote, "missing_note_id", errMissingNoteID)
	}

	var persisted Note
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Note
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", noteID).
			Take(&existing).Error
		now := s.clock().UTC()
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			existing = Note{
				ID:        noteID,
				ProjectID: strings.TrimSpace(projectID),
				Content:   content,
				UpdatedAt: now,
			}
			if createErr := tx.Create(&existing).Error; createErr != nil {
				return newServiceError(opSaveNote, "create_failed", createErr)
			}
		case err != nil:
			return newServiceError(opSaveNote, "select_failed", err)
		default:
			existing.Content = content
			existing.UpdatedAt = now
			if saveErr := tx.Save(&existing).Error; saveErr != nil {
				return newServiceError(opSaveNote, "save_failed", saveErr)
			}
		}
		persisted = existing
		return nil
	})
	if txErr != nil {
		s.logError(opSaveNote, txErr, zap.String("note_id", noteID))
		return Note{}, txErr
	}
	return persisted, nil
}

// GetCanvas serves the read path for a canvas by its natural key.
func (s *Service) GetCanvas(ctx context.Context, projectID, pageID string) (Canvas, error) {
	var canvas Canvas
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND page_id = ?", strings.TrimSpace(projectID), strings.TrimSpace(pageID)).
		Take(&canvas).Error
	if err != nil {
		return Canvas{}, newServiceError(opGetCanvas, "select_failed", err)
	}
	return canvas, nil
}

// GetSprint serves the read path for a project's sprint board.
func (s *Service) GetSprint(ctx context.Context, projectID string) (Sprint, error) {
	var sprint Sprint
	err := s.db.WithContext(ctx).
		Where("project_id = ?", strings.TrimSpace(projectID)).
		Take(&sprint).Error
	if err != nil {
		return Sprint{}, newServiceError(opGetSprint, "select_failed", err)
	}
	return sprint, nil
}

// GetNote serves the read path for a note. It also resolves the owning
// project, which the gateway needs to authorize note-room joins.
func (s *Service) GetNote(ctx context.Context, noteID string) (Note, error) {
	var note Note
	err := s.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(noteID)).
		Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, ErrNoteNotFound
	}
	if err != nil {
		return Note{}, newServiceError(opGetNote, "select_failed", err)
	}
	return note, nil
}

func normalizeJSONArray(value string) string {
	if strings.TrimSpace(value) == "" {
		return "[]"
	}
	return value
}

func (s *Service) logError(operation string, err error, fields ...zap.Field) {
	attrs := append([]zap.Field{zap.String("operation", operation), zap.Error(err)}, fields...)
	s.logger.Error("documents service error", attrs...)
}

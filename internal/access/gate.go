package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tesseralabs/tessera/backend/internal/auth"
	"gorm.io/gorm"
)

var (
	// ErrProjectNotFound indicates the project id does not resolve to a project.
	ErrProjectNotFound = errors.New("access: project not found")
	// ErrNoTeamAssigned indicates the project has no owning team yet.
	ErrNoTeamAssigned = errors.New("access: project has no team assigned")
	// ErrNotATeamMember indicates the identity holds no accepted membership.
	ErrNotATeamMember = errors.New("access: not an accepted team member")

	errMissingDatabase = errors.New("access: database handle is required")
	errMissingIdentity = errors.New("access: identity is required")
)

// GateConfig describes the dependencies of the authorization gate.
type GateConfig struct {
	Database *gorm.DB
}

// Gate answers whether an authenticated identity may touch a project's rooms.
// The same predicate backs the pre-flight page-access check performed by the
// CRUD service and the defense-in-depth check at room-join time.
type Gate struct {
	db *gorm.DB
}

// NewGate constructs the authorization gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	return &Gate{db: cfg.Database}, nil
}

// CanAccessProject returns nil when the identity is an accepted member of the
// team owning the project. The failure sentinels are distinct so a room-join
// rejection can tell the client which precondition failed.
func (g *Gate) CanAccessProject(ctx context.Context, identity auth.Identity, projectID string) error {
	userID := strings.TrimSpace(identity.UserID)
	if userID == "" {
		return errMissingIdentity
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ErrProjectNotFound
	}

	var project Project
	err := g.db.WithContext(ctx).Where("id = ?", projectID).Take(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrProjectNotFound
	}
	if err != nil {
		return fmt.Errorf("access: project lookup failed: %w", err)
	}

	if strings.TrimSpace(project.TeamID) == "" {
		return ErrNoTeamAssigned
	}

	query := g.db.WithContext(ctx).
		Where("team_id = ? AND status = ?", project.TeamID, MemberStatusAccepted)
	email := strings.TrimSpace(identity.Email)
	if email != "" {
		query = query.Where("user_id = ? OR email = ?", userID, email)
	} else {
		query = query.Where("user_id = ?", userID)
	}

	var member TeamMember
	err = query.Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotATeamMember
	}
	if err != nil {
		return fmt.Errorf("access: membership lookup failed: %w", err)
	}
	return nil
}

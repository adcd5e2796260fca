package access

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/tesseralabs/tessera/backend/internal/auth"
	"gorm.io/gorm"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:access_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Team{}, &Project{}, &TeamMember{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func seedProject(t *testing.T, db *gorm.DB, projectID, teamID string) {
	t.Helper()
	if teamID != "" {
		if err := db.Create(&Team{ID: teamID, Name: "Team " + teamID}).Error; err != nil {
			t.Fatalf("failed to seed team: %v", err)
		}
	}
	if err := db.Create(&Project{ID: projectID, TeamID: teamID, Name: "Project " + projectID}).Error; err != nil {
		t.Fatalf("failed to seed project: %v", err)
	}
}

func newTestGate(t *testing.T, db *gorm.DB) *Gate {
	t.Helper()
	gate, err := NewGate(GateConfig{Database: db})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return gate
}

func TestGateAllowsAcceptedMember(t *testing.T) {
	db := openTestDatabase(t)
	seedProject(t, db, "proj-1", "team-1")
	if err := db.Create(&TeamMember{TeamID: "team-1", UserID: "user-1", Email: "u1@example.com", Status: MemberStatusAccepted}).Error; err != nil {
		t.Fatalf("failed to seed membership: %v", err)
	}
	gate := newTestGate(t, db)

	err := gate.CanAccessProject(context.Background(), auth.Identity{UserID: "user-1", Email: "u1@example.com"}, "proj-1")
	if err != nil {
		t.Fatalf("expected access granted: %v", err)
	}
}

func TestGateAllowsMembershipByEmailInvitation(t *testing.T) {
	db := openTestDatabase(t)
	seedProject(t, db, "proj-1", "team-1")
	if err := db.Create(&TeamMember{TeamID: "team-1", UserID: "invited-placeholder", Email: "new@example.com", Status: MemberStatusAccepted}).Error; err != nil {
		t.Fatalf("failed to seed membership: %v", err)
	}
	gate := newTestGate(t, db)

	err := gate.CanAccessProject(context.Background(), auth.Identity{UserID: "user-9", Email: "new@example.com"}, "proj-1")
	if err != nil {
		t.Fatalf("expected access granted via email invitation: %v", err)
	}
}

func TestGateRejectsPendingMember(t *testing.T) {
	db := openTestDatabase(t)
	seedProject(t, db, "proj-1", "team-1")
	if err := db.Create(&TeamMember{TeamID: "team-1", UserID: "user-1", Status: "pending"}).Error; err != nil {
		t.Fatalf("failed to seed membership: %v", err)
	}
	gate := newTestGate(t, db)

	err := gate.CanAccessProject(context.Background(), auth.Identity{UserID: "user-1"}, "proj-1")
	if !errors.Is(err, ErrNotATeamMember) {
		t.Fatalf("expected ErrNotATeamMember, got %v", err)
	}
}

func TestGateRejectsNonMember(t *testing.T) {
	db := openTestDatabase(t)
	seedProject(t, db, "proj-1", "team-1")
	gate := newTestGate(t, db)

	err := gate.CanAccessProject(context.Background(), auth.Identity{UserID: "stranger"}, "proj-1")
	if !errors.Is(err, ErrNotATeamMember) {
		t.Fatalf("expected ErrNotATeamMember, got %v", err)
	}
}

func TestGateRejectsProjectWithoutTeam(t *testing.T) {
	db := openTestDatabase(t)
	seedProject(t, db, "proj-orphan", "")
	gate := newTestGate(t, db)

	err := gate.CanAccessProject(context.Background(), auth.Identity{UserID: "user-1"}, "proj-orphan")
	if !errors.Is(err, ErrNoTeamAssigned) {
		t.Fatalf("expected ErrNoTeamAssigned, got %v", err)
	}
}

func TestGateRejectsUnknownProject(t *testing.T) {
	db := openTestDatabase(t)
	gate := newTestGate(t, db)

	err := gate.CanAccessProject(context.Background(), auth.Identity{UserID: "user-1"}, "missing")
	if !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
}

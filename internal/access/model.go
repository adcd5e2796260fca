package access

import "time"

// MemberStatusAccepted is the only membership status that grants access.
// Pending invitations and revoked members carry other values.
const MemberStatusAccepted = "accepted"

// Team groups the users that share a set of projects.
type Team struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	Name      string    `gorm:"column:name;size:320;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing teams.
func (Team) TableName() string {
	return "teams"
}

// Project is the unit of ownership for collaborative documents.
type Project struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	TeamID    string    `gorm:"column:team_id;size:190;index"`
	Name      string    `gorm:"column:name;size:320;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing projects.
func (Project) TableName() string {
	return "projects"
}

// TeamMember records one user's standing within a team. Invitations are keyed
// by email before the invitee has an account, so lookups match on either.
type TeamMember struct {
	TeamID    string    `gorm:"column:team_id;primaryKey;size:190;not null"`
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Email     string    `gorm:"column:email;size:320;index"`
	Status    string    `gorm:"column:status;size:32;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing team memberships.
func (TeamMember) TableName() string {
	return "team_members"
}

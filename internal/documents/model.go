package documents

import "time"

// Canvas holds the node/edge graph of a visual canvas page. The mutable fields
// are replaced wholesale on every save; there is no partial patching.
type Canvas struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	ProjectID string    `gorm:"column:project_id;size:190;not null;uniqueIndex:idx_canvas_project_page,priority:1"`
	PageID    string    `gorm:"column:page_id;size:190;not null;uniqueIndex:idx_canvas_project_page,priority:2"`
	NodesJSON string    `gorm:"column:nodes_json;type:text;not null"`
	EdgesJSON string    `gorm:"column:edges_json;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName exposes the table backing canvases.
func (Canvas) TableName() string {
	return "canvases"
}

// Sprint holds the column/card nodes of a project's sprint board.
type Sprint struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	ProjectID string    `gorm:"column:project_id;size:190;not null;uniqueIndex"`
	NodesJSON string    `gorm:"column:nodes_json;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName exposes the table backing sprint boards.
func (Sprint) TableName() string {
	return "sprints"
}

// Note holds the free-text content of a collaborative note.
type Note struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	ProjectID string    `gorm:"column:project_id;size:190;index"`
	Content   string    `gorm:"column:content;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName exposes the table backing notes.
func (Note) TableName() string {
	return "notes"
}

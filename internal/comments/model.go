package comments

import (
	"encoding/json"
	"time"
)

// Attachment references a file stored by the upload bridge.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Comment is one message in a task's discussion thread. Records are never
// physically deleted for a single viewer; hiding appends the viewer to the
// exclusion list instead.
type Comment struct {
	ID              string     `gorm:"column:id;primaryKey;size:190;not null"`
	TaskID          string     `gorm:"column:task_id;size:190;not null;index:idx_comments_task_created,priority:1"`
	AuthorID        string     `gorm:"column:author_id;size:190;not null"`
	Content         string     `gorm:"column:content;type:text;not null"`
	AttachmentsJSON string     `gorm:"column:attachments_json;type:text;not null;default:'[]'"`
	HiddenForJSON   string     `gorm:"column:hidden_for_json;type:text;not null;default:'[]'"`
	Pinned          bool       `gorm:"column:pinned;not null;default:false"`
	PinnedBy        string     `gorm:"column:pinned_by;size:190"`
	PinnedAt        *time.Time `gorm:"column:pinned_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;index:idx_comments_task_created,priority:2"`
}

// TableName exposes the table backing comments.
func (Comment) TableName() string {
	return "comments"
}

// Attachments decodes the stored attachment list.
func (c Comment) Attachments() []Attachment {
	var attachments []Attachment
	if err := json.Unmarshal([]byte(c.AttachmentsJSON), &attachments); err != nil {
		return nil
	}
	return attachments
}

// HiddenFor decodes the viewer exclusion list.
func (c Comment) HiddenFor() []string {
	var hidden []string
	if err := json.Unmarshal([]byte(c.HiddenForJSON), &hidden); err != nil {
		return nil
	}
	return hidden
}

// HiddenForViewer reports whether the comment is excluded for the viewer.
func (c Comment) HiddenForViewer(viewerID string) bool {
	for _, hidden := range c.HiddenFor() {
		if hidden == viewerID {
			return true
		}
	}
	return false
}

func encodeAttachments(attachments []Attachment) (string, error) {
	if len(attachments) == 0 {
		return "[]", nil
	}
	encoded, err := json.Marshal(attachments)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func encodeHiddenFor(viewerIDs []string) (string, error) {
	if len(viewerIDs) == 0 {
		return "[]", nil
	}
	encoded, err := json.Marshal(viewerIDs)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

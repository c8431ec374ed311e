package domain

import (
	"strings"
	"time"
)

// CommentAnchor identifies the (section, stage) coordinate a comment is attached to.
type CommentAnchor struct {
	MapID     string
	SectionID string
	StageID   string
}

// Comment stores a note anchored to one cell coordinate. It lives independently of the cell:
// clearing or deleting the cell leaves the comment in place.
type Comment struct {
	ID         string     `json:"id" yaml:"id"`
	MapID      string     `json:"map_id" yaml:"map_id"`
	SectionID  string     `json:"section_id" yaml:"section_id"`
	StageID    string     `json:"stage_id" yaml:"stage_id"`
	Content    string     `json:"content" yaml:"content"`
	AuthorName string     `json:"author_name" yaml:"author_name"`
	Resolved   bool       `json:"resolved" yaml:"resolved"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" yaml:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty" yaml:"resolved_at,omitempty"`
}

// CommentInput holds input values for comment creation operations.
type CommentInput struct {
	ID         string
	Anchor     CommentAnchor
	Content    string
	AuthorName string
}

// NewComment constructs a normalized, unresolved comment.
func NewComment(in CommentInput, now time.Time) (Comment, error) {
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		return Comment{}, ErrInvalidID
	}
	anchor, err := NormalizeCommentAnchor(in.Anchor)
	if err != nil {
		return Comment{}, err
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return Comment{}, ErrInvalidContent
	}
	authorName := strings.TrimSpace(in.AuthorName)
	if authorName == "" {
		authorName = "journeymap-user"
	}

	timestamp := now.UTC()
	return Comment{
		ID:         in.ID,
		MapID:      anchor.MapID,
		SectionID:  anchor.SectionID,
		StageID:    anchor.StageID,
		Content:    content,
		AuthorName: authorName,
		CreatedAt:  timestamp,
		UpdatedAt:  timestamp,
	}, nil
}

// NormalizeCommentAnchor validates and trims anchor identifiers.
func NormalizeCommentAnchor(anchor CommentAnchor) (CommentAnchor, error) {
	anchor.MapID = strings.TrimSpace(anchor.MapID)
	anchor.SectionID = strings.TrimSpace(anchor.SectionID)
	anchor.StageID = strings.TrimSpace(anchor.StageID)
	if anchor.MapID == "" {
		return CommentAnchor{}, ErrInvalidID
	}
	if anchor.SectionID == "" || anchor.StageID == "" {
		return CommentAnchor{}, ErrInvalidTargetID
	}
	return anchor, nil
}

// SetResolved marks the comment resolved or reopens it.
func (c *Comment) SetResolved(resolved bool, now time.Time) {
	now = now.UTC()
	c.Resolved = resolved
	c.UpdatedAt = now
	if resolved {
		c.ResolvedAt = &now
		return
	}
	c.ResolvedAt = nil
}

// domain/note.go
package domain

import (
	"strings"
	"time"
)

// DefaultCategory is assigned to notes created without a category.
const DefaultCategory = "General"

type Note struct {
	ID        string    `json:"id" yaml:"id"`
	OwnerID   string    `json:"user" yaml:"-"`
	Title     string    `json:"title" yaml:"title"`
	Content   string    `json:"content" yaml:"-"`
	Category  string    `json:"category" yaml:"category"`
	Tags      []string  `json:"tags" yaml:"tags"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// NoteDraft is the input to note creation. Category and Tags may be left
// empty and receive defaults.
type NoteDraft struct {
	Title    string   `json:"title" validate:"required"`
	Content  string   `json:"content" validate:"required"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// NotePatch is a partial update. A nil field is left untouched.
type NotePatch struct {
	Title    *string   `json:"title,omitempty" validate:"omitempty,min=1"`
	Content  *string   `json:"content,omitempty" validate:"omitempty,min=1"`
	Category *string   `json:"category,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
}

// Normalize trims the draft, validates it and fills in defaults. Content
// is kept as given.
func (d NoteDraft) Normalize() (NoteDraft, error) {
	out := NoteDraft{
		Title:    strings.TrimSpace(d.Title),
		Content:  d.Content,
		Category: strings.TrimSpace(d.Category),
		Tags:     trimTags(d.Tags),
	}
	if err := Validate(out); err != nil {
		return NoteDraft{}, err
	}
	if out.Category == "" {
		out.Category = DefaultCategory
	}
	return out, nil
}

// Normalize trims and validates the fields present in the patch. A
// category that is empty after trimming is treated as absent.
func (p NotePatch) Normalize() (NotePatch, error) {
	var out NotePatch
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		out.Title = &title
	}
	if p.Content != nil {
		content := *p.Content
		out.Content = &content
	}
	if p.Category != nil {
		if category := strings.TrimSpace(*p.Category); category != "" {
			out.Category = &category
		}
	}
	if p.Tags != nil {
		tags := trimTags(*p.Tags)
		out.Tags = &tags
	}
	if err := Validate(out); err != nil {
		return NotePatch{}, err
	}
	return out, nil
}

func trimTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		out = append(out, strings.TrimSpace(tag))
	}
	return out
}

// UniqueTags drops empty and repeated tags, keeping first-seen order. The
// editing surface applies it before handing tags to the repository.
func UniqueTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

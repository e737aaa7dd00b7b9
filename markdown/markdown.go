// markdown/markdown.go
package markdown

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ViniZap4/lumi-notes/domain"
)

// ContentType is the media type of rendered notes.
const ContentType = "text/markdown; charset=utf-8"

var delimiter = []byte("---")

// ErrNoFrontMatter is returned by Parse when the document does not open
// with a front matter block.
var ErrNoFrontMatter = errors.New("markdown: invalid frontmatter format")

type frontMatter struct {
	ID        string     `yaml:"id,omitempty"`
	Title     string     `yaml:"title"`
	Category  string     `yaml:"category,omitempty"`
	Tags      []string   `yaml:"tags"`
	CreatedAt *time.Time `yaml:"created_at,omitempty"`
	UpdatedAt *time.Time `yaml:"updated_at,omitempty"`
}

// Render writes n as a markdown document with YAML front matter. The owner
// is never written.
func Render(n *domain.Note) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("---\n")

	fm := frontMatter{
		ID:        n.ID,
		Title:     n.Title,
		Category:  n.Category,
		Tags:      n.Tags,
		CreatedAt: &n.CreatedAt,
		UpdatedAt: &n.UpdatedAt,
	}
	if fm.Tags == nil {
		fm.Tags = []string{}
	}

	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(fm); err != nil {
		return nil, fmt.Errorf("markdown: failed to encode frontmatter: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("markdown: failed to encode frontmatter: %w", err)
	}

	buf.WriteString("---\n\n")
	buf.WriteString(n.Content)

	return buf.Bytes(), nil
}

// Parse reads a document produced by Render, or written by hand in the
// same shape, into a draft. Identifiers and timestamps in the front matter
// are ignored; an imported note is always new.
func Parse(data []byte) (domain.NoteDraft, error) {
	data = bytes.TrimLeft(data, "\ufeff \t\r\n")
	if !bytes.HasPrefix(data, delimiter) {
		return domain.NoteDraft{}, ErrNoFrontMatter
	}

	// Split frontmatter and content
	parts := bytes.SplitN(data, delimiter, 3)
	if len(parts) < 3 {
		return domain.NoteDraft{}, ErrNoFrontMatter
	}

	var fm frontMatter
	if err := yaml.Unmarshal(parts[1], &fm); err != nil {
		return domain.NoteDraft{}, fmt.Errorf("markdown: failed to parse frontmatter: %w", err)
	}

	return domain.NoteDraft{
		Title:    fm.Title,
		Category: fm.Category,
		Tags:     fm.Tags,
		Content:  string(bytes.TrimSpace(parts[2])),
	}, nil
}

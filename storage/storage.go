// Package storage defines the contracts the gate and the note repository
// depend on. The note store is owner-agnostic: ownership is expressed only
// through the filter a caller passes in.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ViniZap4/lumi-notes/domain"
)

var (
	// ErrNotFound is returned when no record matches a filter.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicateLogin is returned when an identity with the same login
	// already exists.
	ErrDuplicateLogin = errors.New("storage: duplicate login")
)

// IdentityStore holds account records.
type IdentityStore interface {
	FindByID(ctx context.Context, id string) (*domain.Identity, error)
	FindByLogin(ctx context.Context, login string) (*domain.Identity, error)
	Create(ctx context.Context, identity domain.Identity) (*domain.Identity, error)
}

// NoteFilter selects notes by equality. Empty fields match anything.
type NoteFilter struct {
	ID      string
	OwnerID string
}

// Matches reports whether n satisfies the filter.
func (f NoteFilter) Matches(n *domain.Note) bool {
	if f.ID != "" && f.ID != n.ID {
		return false
	}
	if f.OwnerID != "" && f.OwnerID != n.OwnerID {
		return false
	}
	return true
}

// NoteSort orders FindMany results.
type NoteSort int

const (
	// SortUpdatedDesc puts the most recently touched note first.
	SortUpdatedDesc NoteSort = iota
	// SortCreatedAsc puts the oldest note first.
	SortCreatedAsc
)

// NoteUpdate is the patch applied by UpdateOne. Nil fields are untouched.
// UpdatedAt is always written; stores keep it strictly increasing per note
// by writing max(UpdatedAt, previous + 1µs).
type NoteUpdate struct {
	Title     *string
	Content   *string
	Category  *string
	Tags      *[]string
	UpdatedAt time.Time
}

// NoteStore is a generic note collection reachable by id and by equality
// filters.
type NoteStore interface {
	// Insert stores n, assigning an id when n.ID is empty.
	Insert(ctx context.Context, n domain.Note) (*domain.Note, error)
	FindOne(ctx context.Context, filter NoteFilter) (*domain.Note, error)
	FindMany(ctx context.Context, filter NoteFilter, sort NoteSort) ([]domain.Note, error)
	// UpdateOne applies update to the single note matching filter and
	// returns the stored result. Matching and writing are one atomic step.
	UpdateOne(ctx context.Context, filter NoteFilter, update NoteUpdate) (*domain.Note, error)
	// DeleteOne removes the single note matching filter and reports
	// whether one existed.
	DeleteOne(ctx context.Context, filter NoteFilter) (bool, error)
}

// NextUpdatedAt returns the timestamp a store writes for an update at
// proposed on a note last touched at previous.
func NextUpdatedAt(previous, proposed time.Time) time.Time {
	floor := previous.Add(time.Microsecond)
	if proposed.Before(floor) {
		return floor
	}
	return proposed
}

// Package notes exposes note storage bound to an owner. Every call takes
// the resolved identity and every store call it makes filters by that
// identity's id, so a note is only reachable by its owner.
package notes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/storage"
)

var errNoIdentity = errors.New("notes: no identity")

// Repository is the owner-bound view of a storage.NoteStore.
type Repository struct {
	store storage.NoteStore
	now   func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock replaces time.Now as the source of note timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// NewRepository returns a Repository over store.
func NewRepository(store storage.NoteStore, opts ...Option) *Repository {
	r := &Repository{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List returns every note owned by identity, most recently updated first.
func (r *Repository) List(ctx context.Context, identity *domain.Identity) ([]domain.Note, error) {
	owner, err := ownerOf(identity)
	if err != nil {
		return nil, err
	}
	notes, err := r.store.FindMany(ctx, storage.NoteFilter{OwnerID: owner}, storage.SortUpdatedDesc)
	if err != nil {
		return nil, fmt.Errorf("notes: list for %s: %w", owner, err)
	}
	return notes, nil
}

// Get returns the note if identity owns it. A note owned by someone else
// yields domain.ErrNoteNotFound, as does a missing one.
func (r *Repository) Get(ctx context.Context, identity *domain.Identity, noteID string) (*domain.Note, error) {
	filter, err := scoped(identity, noteID)
	if err != nil {
		return nil, err
	}
	n, err := r.store.FindOne(ctx, filter)
	if err != nil {
		return nil, notFound(err, "get")
	}
	return n, nil
}

// Create validates draft and stores it as a note owned by identity.
func (r *Repository) Create(ctx context.Context, identity *domain.Identity, draft domain.NoteDraft) (*domain.Note, error) {
	owner, err := ownerOf(identity)
	if err != nil {
		return nil, err
	}
	draft, err = draft.Normalize()
	if err != nil {
		return nil, err
	}

	now := r.timestamp()
	n, err := r.store.Insert(ctx, domain.Note{
		OwnerID:   owner,
		Title:     draft.Title,
		Content:   draft.Content,
		Category:  draft.Category,
		Tags:      draft.Tags,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("notes: create for %s: %w", owner, err)
	}
	return n, nil
}

// Update merges the fields present in patch into the note. Absent fields
// keep their values. The updated timestamp moves forward on every
// successful call, even when nothing else changed.
func (r *Repository) Update(ctx context.Context, identity *domain.Identity, noteID string, patch domain.NotePatch) (*domain.Note, error) {
	filter, err := scoped(identity, noteID)
	if err != nil {
		return nil, err
	}
	patch, err = patch.Normalize()
	if err != nil {
		return nil, err
	}

	n, err := r.store.UpdateOne(ctx, filter, storage.NoteUpdate{
		Title:     patch.Title,
		Content:   patch.Content,
		Category:  patch.Category,
		Tags:      patch.Tags,
		UpdatedAt: r.timestamp(),
	})
	if err != nil {
		return nil, notFound(err, "update")
	}
	return n, nil
}

// Delete removes the note if identity owns it.
func (r *Repository) Delete(ctx context.Context, identity *domain.Identity, noteID string) error {
	filter, err := scoped(identity, noteID)
	if err != nil {
		return err
	}
	deleted, err := r.store.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("notes: delete %s: %w", noteID, err)
	}
	if !deleted {
		return domain.ErrNoteNotFound
	}
	return nil
}

// timestamp is truncated to the precision the postgres store keeps.
func (r *Repository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

func ownerOf(identity *domain.Identity) (string, error) {
	if identity == nil || identity.ID == "" {
		return "", errNoIdentity
	}
	return identity.ID, nil
}

func scoped(identity *domain.Identity, noteID string) (storage.NoteFilter, error) {
	owner, err := ownerOf(identity)
	if err != nil {
		return storage.NoteFilter{}, err
	}
	if noteID == "" {
		return storage.NoteFilter{}, domain.ErrNoteNotFound
	}
	return storage.NoteFilter{ID: noteID, OwnerID: owner}, nil
}

func notFound(err error, op string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return domain.ErrNoteNotFound
	}
	return fmt.Errorf("notes: %s: %w", op, err)
}

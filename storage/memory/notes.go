// Package memory implements the storage contracts on in-process maps. It
// backs the server when no database is configured and most tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/storage"
)

// NoteStore keeps notes in a map keyed by id.
type NoteStore struct {
	lock  sync.RWMutex
	notes map[string]domain.Note
}

// NewNoteStore returns an empty NoteStore.
func NewNoteStore() *NoteStore {
	return &NoteStore{notes: make(map[string]domain.Note)}
}

// Insert stores a copy of n.
func (s *NoteStore) Insert(ctx context.Context, n domain.Note) (*domain.Note, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if _, ok := s.notes[n.ID]; ok {
		return nil, fmt.Errorf("memory: note %s already exists", n.ID)
	}
	n = clone(n)
	s.notes[n.ID] = n
	out := clone(n)
	return &out, nil
}

// FindOne returns the first note matching filter.
func (s *NoteStore) FindOne(ctx context.Context, filter storage.NoteFilter) (*domain.Note, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	n, ok := s.match(filter)
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := clone(n)
	return &out, nil
}

// FindMany returns every note matching filter in the requested order.
func (s *NoteStore) FindMany(ctx context.Context, filter storage.NoteFilter, order storage.NoteSort) ([]domain.Note, error) {
	s.lock.RLock()
	notes := make([]domain.Note, 0)
	for _, n := range s.notes {
		if filter.Matches(&n) {
			notes = append(notes, clone(n))
		}
	}
	s.lock.RUnlock()

	sort.Slice(notes, func(i, j int) bool {
		a, b := notes[i], notes[j]
		switch order {
		case storage.SortCreatedAsc:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		default:
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.After(b.UpdatedAt)
			}
		}
		return a.ID < b.ID
	})
	return notes, nil
}

// UpdateOne patches the note matching filter under the write lock.
func (s *NoteStore) UpdateOne(ctx context.Context, filter storage.NoteFilter, update storage.NoteUpdate) (*domain.Note, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	n, ok := s.match(filter)
	if !ok {
		return nil, storage.ErrNotFound
	}
	if update.Title != nil {
		n.Title = *update.Title
	}
	if update.Content != nil {
		n.Content = *update.Content
	}
	if update.Category != nil {
		n.Category = *update.Category
	}
	if update.Tags != nil {
		n.Tags = append([]string{}, (*update.Tags)...)
	}
	n.UpdatedAt = storage.NextUpdatedAt(n.UpdatedAt, update.UpdatedAt)
	s.notes[n.ID] = n

	out := clone(n)
	return &out, nil
}

// DeleteOne removes the note matching filter.
func (s *NoteStore) DeleteOne(ctx context.Context, filter storage.NoteFilter) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	n, ok := s.match(filter)
	if !ok {
		return false, nil
	}
	delete(s.notes, n.ID)
	return true, nil
}

// match must be called with the lock held.
func (s *NoteStore) match(filter storage.NoteFilter) (domain.Note, bool) {
	if filter.ID != "" {
		n, ok := s.notes[filter.ID]
		if !ok || !filter.Matches(&n) {
			return domain.Note{}, false
		}
		return n, true
	}
	for _, n := range s.notes {
		if filter.Matches(&n) {
			return n, true
		}
	}
	return domain.Note{}, false
}

func clone(n domain.Note) domain.Note {
	if n.Tags == nil {
		n.Tags = []string{}
	} else {
		n.Tags = append([]string{}, n.Tags...)
	}
	return n
}

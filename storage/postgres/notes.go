package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/storage"
)

const noteColumns = `id, owner_id, title, content, category, tags, created_at, updated_at`

// NoteStore stores notes in the notes table.
type NoteStore struct {
	db *sql.DB
}

// NewNoteStore returns a NoteStore over db.
func NewNoteStore(db *sql.DB) *NoteStore {
	return &NoteStore{db: db}
}

// Insert stores n and returns the row as written.
func (s *NoteStore) Insert(ctx context.Context, n domain.Note) (*domain.Note, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	tags, err := encodeTags(n.Tags)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `INSERT INTO notes (`+noteColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
		RETURNING `+noteColumns,
		n.ID, n.OwnerID, n.Title, n.Content, n.Category, tags, n.CreatedAt, n.UpdatedAt)
	return scanNote(row)
}

// FindOne returns the first note matching filter.
func (s *NoteStore) FindOne(ctx context.Context, filter storage.NoteFilter) (*domain.Note, error) {
	where, args, ok := whereClause(filter, 1)
	if !ok {
		return nil, storage.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE `+where+` LIMIT 1`, args...)
	return scanNote(row)
}

// FindMany returns every note matching filter in the requested order.
func (s *NoteStore) FindMany(ctx context.Context, filter storage.NoteFilter, order storage.NoteSort) ([]domain.Note, error) {
	notes := []domain.Note{}

	where, args, ok := whereClause(filter, 1)
	if !ok {
		return notes, nil
	}

	orderBy := `updated_at DESC, id`
	if order == storage.SortCreatedAsc {
		orderBy = `created_at ASC, id`
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE `+where+` ORDER BY `+orderBy, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: select notes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: select notes: %w", err)
	}
	return notes, nil
}

// UpdateOne patches the note matching filter in a single statement, so
// the ownership match and the write cannot be separated.
func (s *NoteStore) UpdateOne(ctx context.Context, filter storage.NoteFilter, update storage.NoteUpdate) (*domain.Note, error) {
	where, args, ok := whereClause(filter, 6)
	if !ok {
		return nil, storage.ErrNotFound
	}

	var tags any
	if update.Tags != nil {
		encoded, err := encodeTags(*update.Tags)
		if err != nil {
			return nil, err
		}
		tags = encoded
	}

	params := append([]any{
		nullable(update.Title),
		nullable(update.Content),
		nullable(update.Category),
		tags,
		update.UpdatedAt,
	}, args...)

	row := s.db.QueryRowContext(ctx, `UPDATE notes SET
		title = COALESCE($1, title),
		content = COALESCE($2, content),
		category = COALESCE($3, category),
		tags = COALESCE($4::jsonb, tags),
		updated_at = GREATEST($5, updated_at + interval '1 microsecond')
		WHERE `+singleRow(where)+`
		RETURNING `+noteColumns, params...)
	return scanNote(row)
}

// DeleteOne removes the note matching filter.
func (s *NoteStore) DeleteOne(ctx context.Context, filter storage.NoteFilter) (bool, error) {
	where, args, ok := whereClause(filter, 1)
	if !ok {
		return false, nil
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE `+singleRow(where), args...)
	if err != nil {
		return false, fmt.Errorf("postgres: delete note: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: delete note: %w", err)
	}
	return n > 0, nil
}

// whereClause renders filter with placeholders numbered from start. It
// returns false when a field cannot match any row, such as an id that is
// not a UUID.
func whereClause(filter storage.NoteFilter, start int) (string, []any, bool) {
	var conds []string
	var args []any

	if filter.ID != "" {
		if _, err := uuid.Parse(filter.ID); err != nil {
			return "", nil, false
		}
		conds = append(conds, fmt.Sprintf("id = $%d", start+len(args)))
		args = append(args, filter.ID)
	}
	if filter.OwnerID != "" {
		if _, err := uuid.Parse(filter.OwnerID); err != nil {
			return "", nil, false
		}
		conds = append(conds, fmt.Sprintf("owner_id = $%d", start+len(args)))
		args = append(args, filter.OwnerID)
	}
	if len(conds) == 0 {
		return "TRUE", nil, true
	}
	return strings.Join(conds, " AND "), args, true
}

// singleRow narrows where to one row when it does not already pin the id.
func singleRow(where string) string {
	if strings.HasPrefix(where, "id = ") {
		return where
	}
	return `id = (SELECT id FROM notes WHERE ` + where + ` LIMIT 1)`
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(row scanner) (*domain.Note, error) {
	var n domain.Note
	var tags []byte
	err := row.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Content, &n.Category, &tags, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scan note: %w", err)
	}
	if err := json.Unmarshal(tags, &n.Tags); err != nil {
		return nil, fmt.Errorf("postgres: decode tags of note %s: %w", n.ID, err)
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	return &n, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("postgres: encode tags: %w", err)
	}
	return string(b), nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

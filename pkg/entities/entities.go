package entities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Known entity type names.
const (
	TypeForm       = "form"
	TypeSubmission = "submission"
)

// ErrNotFound indicates the entity does not exist.
var ErrNotFound = errors.New("entity not found")

// ErrUnknownType indicates a type name the store has no table for.
var ErrUnknownType = errors.New("unknown entity type")

// Entity is anything whose ownership can be checked.
type Entity interface {
	OwnedBy(userID string) bool
}

// Store fetches entities for ownership checks.
type Store interface {
	Get(ctx context.Context, typeName string, id int64) (Entity, error)
}

// Form is a form definition owned by the user who created it.
type Form struct {
	ID      int64
	OwnerID string
}

func (f *Form) OwnedBy(userID string) bool { return f.OwnerID == userID }

// Submission is a single form submission, owned by the submitter.
type Submission struct {
	ID      int64
	FormID  int64
	OwnerID string
}

func (s *Submission) OwnedBy(userID string) bool { return s.OwnerID == userID }

// SQLStore loads entities from the relational database.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a SQLStore over an existing connection pool.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Get fetches the entity's ownership row.
func (s *SQLStore) Get(ctx context.Context, typeName string, id int64) (Entity, error) {
	switch typeName {
	case TypeForm:
		return s.getForm(ctx, id)
	case TypeSubmission:
		return s.getSubmission(ctx, id)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typeName)
	}
}

func (s *SQLStore) getForm(ctx context.Context, id int64) (*Form, error) {
	form := &Form{ID: id}
	err := s.db.QueryRowContext(ctx,
		"SELECT owner_id FROM forms WHERE id = $1", id,
	).Scan(&form.OwnerID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: form %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load form %d: %w", id, err)
	}
	return form, nil
}

func (s *SQLStore) getSubmission(ctx context.Context, id int64) (*Submission, error) {
	sub := &Submission{ID: id}
	err := s.db.QueryRowContext(ctx,
		"SELECT form_id, owner_id FROM submissions WHERE id = $1", id,
	).Scan(&sub.FormID, &sub.OwnerID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: submission %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load submission %d: %w", id, err)
	}
	return sub, nil
}

// Package registry provides CRUD operations over the audience registry.
//
// An audience is a named segment definition document: metadata plus the
// segment list as authored in the builder UI. Segments are persisted as a
// JSON column. The registry stores definitions only; it never materializes
// user id lists (generation is a separate backend's job).
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cohortlab/cohort/internal/types"
)

// Queries is the named-query interface the registry needs.
// Implemented by *db.Queries; narrowed here so tests can substitute.
type Queries interface {
	ExecContext(ctx context.Context, name string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error
	SelectContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error
}

// Audience is a registered audience definition.
// Timestamps are RFC3339 strings, matching the storage format.
type Audience struct {
	ID          types.AudienceID `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Segments    []types.Segment  `json:"segments"`
	CreatedAt   string           `json:"created_at"`
	UpdatedAt   string           `json:"updated_at"`
	CreatedBy   string           `json:"created_by"`
}

// audienceRow is the flat database representation.
type audienceRow struct {
	ID          string `db:"audience_id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Segments    string `db:"segments"`
	CreatedAt   string `db:"created_at"`
	UpdatedAt   string `db:"updated_at"`
	CreatedBy   string `db:"created_by"`
}

// List pagination bounds.
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Registry implements audience CRUD over named queries.
type Registry struct {
	q   Queries
	now func() time.Time
}

// New constructs a Registry.
func New(q Queries) *Registry {
	return &Registry{q: q, now: time.Now}
}

// Create registers a new audience and returns it with a fresh UUIDv7 id.
func (r *Registry) Create(ctx context.Context, name, description string, segments []types.Segment, createdBy string) (Audience, error) {
	if name == "" {
		return Audience{}, types.ErrNameRequired
	}

	if segments == nil {
		segments = []types.Segment{}
	}
	segmentsJSON, err := json.Marshal(segments)
	if err != nil {
		return Audience{}, fmt.Errorf("marshal segments: %w", err)
	}

	now := r.now().UTC().Format(time.RFC3339)
	audience := Audience{
		ID:          types.NewAudienceID(),
		Name:        name,
		Description: description,
		Segments:    segments,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   createdBy,
	}

	_, err = r.q.ExecContext(ctx, "create-audience",
		string(audience.ID),
		audience.Name,
		audience.Description,
		string(segmentsJSON),
		audience.CreatedAt,
		audience.UpdatedAt,
		audience.CreatedBy,
	)
	if err != nil {
		return Audience{}, fmt.Errorf("create audience: %w", err)
	}

	return audience, nil
}

// Get returns one audience by id.
func (r *Registry) Get(ctx context.Context, id types.AudienceID) (Audience, error) {
	var row audienceRow
	err := r.q.GetContext(ctx, "get-audience", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return Audience{}, types.ErrAudienceNotFound
	}
	if err != nil {
		return Audience{}, fmt.Errorf("get audience: %w", err)
	}
	return rowToAudience(row)
}

// List returns a page of audiences, newest first.
// Page is zero-based; size defaults to 20 and caps at 100.
func (r *Registry) List(ctx context.Context, page, size int) ([]Audience, error) {
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	if page < 0 {
		page = 0
	}

	var rows []audienceRow
	if err := r.q.SelectContext(ctx, "list-audiences", &rows, size, page*size); err != nil {
		return nil, fmt.Errorf("list audiences: %w", err)
	}

	audiences := make([]Audience, 0, len(rows))
	for _, row := range rows {
		audience, err := rowToAudience(row)
		if err != nil {
			return nil, err
		}
		audiences = append(audiences, audience)
	}
	return audiences, nil
}

// Update replaces an audience's name, description, and segments.
func (r *Registry) Update(ctx context.Context, id types.AudienceID, name, description string, segments []types.Segment) (Audience, error) {
	if name == "" {
		return Audience{}, types.ErrNameRequired
	}

	if segments == nil {
		segments = []types.Segment{}
	}
	segmentsJSON, err := json.Marshal(segments)
	if err != nil {
		return Audience{}, fmt.Errorf("marshal segments: %w", err)
	}

	updatedAt := r.now().UTC().Format(time.RFC3339)
	result, err := r.q.ExecContext(ctx, "update-audience",
		name, description, string(segmentsJSON), updatedAt, string(id))
	if err != nil {
		return Audience{}, fmt.Errorf("update audience: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return Audience{}, fmt.Errorf("update audience: %w", err)
	}
	if affected == 0 {
		return Audience{}, types.ErrAudienceNotFound
	}

	return r.Get(ctx, id)
}

// Delete removes an audience by id.
func (r *Registry) Delete(ctx context.Context, id types.AudienceID) error {
	result, err := r.q.ExecContext(ctx, "delete-audience", string(id))
	if err != nil {
		return fmt.Errorf("delete audience: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete audience: %w", err)
	}
	if affected == 0 {
		return types.ErrAudienceNotFound
	}
	return nil
}

// rowToAudience decodes the segments JSON column.
func rowToAudience(row audienceRow) (Audience, error) {
	var segments []types.Segment
	if row.Segments != "" {
		if err := json.Unmarshal([]byte(row.Segments), &segments); err != nil {
			return Audience{}, fmt.Errorf("decode segments for audience %s: %w", row.ID, err)
		}
	}
	if segments == nil {
		segments = []types.Segment{}
	}

	return Audience{
		ID:          types.AudienceID(row.ID),
		Name:        row.Name,
		Description: row.Description,
		Segments:    segments,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
		CreatedBy:   row.CreatedBy,
	}, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/atelierhq/atelier-api/internal/apperr"
)

// claimAttempts bounds retries of a tail-position claim that lost a race on
// the unique (group, position) index.
const claimAttempts = 3

// isUniqueViolation reports a Postgres duplicate-key error (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

type MoveDirection string

const (
	MoveDirectionUp   MoveDirection = "up"
	MoveDirectionDown MoveDirection = "down"
)

func ParseMoveDirection(s string) (MoveDirection, bool) {
	switch MoveDirection(s) {
	case MoveDirectionUp, MoveDirectionDown:
		return MoveDirection(s), true
	}
	return "", false
}

// CollectionKind names an ordered table the store knows how to reorder.
// Table and grouping column are fixed per kind; nothing caller-supplied ever
// reaches the SQL text.
type CollectionKind int

const (
	CollectionLeads CollectionKind = iota
	CollectionResources
)

type collectionTable struct {
	table    string
	groupCol string
}

var collectionTables = map[CollectionKind]collectionTable{
	CollectionLeads:     {table: "leads", groupCol: "status"},
	CollectionResources: {table: "resources", groupCol: "collection"},
}

// CollectionRepository maintains explicit display positions for records that
// live in ordered lists (pipeline columns, resource lists).
type CollectionRepository interface {
	// Move swaps the record with its adjacent sibling in the given
	// direction. It returns false with a nil error when the record is
	// already at the boundary.
	Move(ctx context.Context, kind CollectionKind, id string, dir MoveDirection) (bool, error)
}

type collectionRepository struct {
	db *sql.DB
}

func NewCollectionRepository(db *sql.DB) CollectionRepository {
	return &collectionRepository{db: db}
}

// Move runs both position writes of the swap inside one transaction, with
// both rows locked first. Two unguarded updates would let a concurrent
// reorder or insert land between them and produce duplicate or skipped
// positions.
func (r *collectionRepository) Move(ctx context.Context, kind CollectionKind, id string, dir MoveDirection) (bool, error) {
	ct, ok := collectionTables[kind]
	if !ok {
		return false, errors.Errorf("unknown collection kind %d", kind)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "begin reorder transaction")
	}
	defer tx.Rollback()

	var (
		group    string
		position int64
	)
	lockSelf := fmt.Sprintf(
		`SELECT %s, position FROM %s WHERE id = $1 FOR UPDATE`,
		ct.groupCol, ct.table,
	)
	if err := tx.QueryRowContext(ctx, lockSelf, id).Scan(&group, &position); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, apperr.NotFound("record %s not found", id)
		}
		return false, errors.Wrap(err, "load record for reorder")
	}

	// Neighbor selection mirrors the read ordering: ascending position,
	// created_at then id as tie-breakers. Positions are never assumed
	// contiguous.
	var neighborQuery string
	if dir == MoveDirectionUp {
		neighborQuery = fmt.Sprintf(`
			SELECT id, position FROM %s
			WHERE %s = $1 AND id <> $2 AND position <= $3
			ORDER BY position DESC, created_at DESC, id DESC
			LIMIT 1
			FOR UPDATE`, ct.table, ct.groupCol)
	} else {
		neighborQuery = fmt.Sprintf(`
			SELECT id, position FROM %s
			WHERE %s = $1 AND id <> $2 AND position >= $3
			ORDER BY position ASC, created_at ASC, id ASC
			LIMIT 1
			FOR UPDATE`, ct.table, ct.groupCol)
	}

	var (
		neighborID  string
		neighborPos int64
	)
	err = tx.QueryRowContext(ctx, neighborQuery, group, id, position).Scan(&neighborID, &neighborPos)
	if errors.Is(err, sql.ErrNoRows) {
		// Already at the boundary.
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "load reorder neighbor")
	}

	// One statement for both writes: the unique (group, position) index is
	// checked per statement, so the swap never holds a transient duplicate.
	swap := fmt.Sprintf(`
		UPDATE %s
		SET position = CASE id WHEN $1 THEN $4 ELSE $3 END, updated_at = now()
		WHERE id IN ($1, $2)`, ct.table)
	if _, err := tx.ExecContext(ctx, swap, id, neighborID, position, neighborPos); err != nil {
		return false, errors.Wrap(err, "write swapped positions")
	}

	if err := tx.Commit(); err != nil {
		return false, errors.Wrap(err, "commit reorder")
	}
	return true, nil
}

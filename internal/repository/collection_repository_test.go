package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier-api/internal/apperr"
)

func TestMoveSwapsWithinOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Both rows are locked first, then a single statement exchanges the two
	// positions inside one Begin/Commit pair.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status, position FROM leads WHERE id = \$1 FOR UPDATE`).
		WithArgs("lead-2").
		WillReturnRows(sqlmock.NewRows([]string{"status", "position"}).AddRow("NEW", 2))
	mock.ExpectQuery(`SELECT id, position FROM leads`).
		WithArgs("NEW", "lead-2", int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "position"}).AddRow("lead-1", 1))
	mock.ExpectExec(`UPDATE leads`).
		WithArgs("lead-2", "lead-1", int64(2), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	repo := NewCollectionRepository(db)
	moved, err := repo.Move(context.Background(), CollectionLeads, "lead-2", MoveDirectionUp)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMoveAtBoundaryIsNoOp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status, position FROM leads WHERE id = \$1 FOR UPDATE`).
		WithArgs("lead-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "position"}).AddRow("NEW", 1))
	mock.ExpectQuery(`SELECT id, position FROM leads`).
		WithArgs("NEW", "lead-1", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "position"}))
	mock.ExpectRollback()

	repo := NewCollectionRepository(db)
	moved, err := repo.Move(context.Background(), CollectionLeads, "lead-1", MoveDirectionUp)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMoveMissingRecordNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT collection, position FROM resources WHERE id = \$1 FOR UPDATE`).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"collection", "position"}))
	mock.ExpectRollback()

	repo := NewCollectionRepository(db)
	_, err = repo.Move(context.Background(), CollectionResources, "gone", MoveDirectionDown)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseMoveDirection(t *testing.T) {
	dir, ok := ParseMoveDirection("up")
	assert.True(t, ok)
	assert.Equal(t, MoveDirectionUp, dir)

	dir, ok = ParseMoveDirection("down")
	assert.True(t, ok)
	assert.Equal(t, MoveDirectionDown, dir)

	_, ok = ParseMoveDirection("sideways")
	assert.False(t, ok)
}

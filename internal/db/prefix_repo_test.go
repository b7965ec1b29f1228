package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"accounting/internal/types"
)

// Note: mockDBTX, mockRow, and mockRows are defined in user_repo_test.go

func TestPrefixRepository_Create_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPrefixRepository(db)

	now := time.Now().UTC()
	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*time.Time) = now
			return nil
		},
	}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	prefix, err := repo.Create(context.Background(), 7)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, prefix.ID)
	assert.Equal(t, int64(7), prefix.UserID)
	assert.Equal(t, now, prefix.CreatedAt)
	assert.Zero(t, prefix.Size)
	assert.Zero(t, prefix.Downloads)
}

func TestPrefixRepository_Get_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPrefixRepository(db)

	row := &mockRow{scanErr: pgx.ErrNoRows}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	_, err := repo.Get(context.Background(), uuid.New())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundPrefix, appErr.Code)
}

func TestPrefixRepository_ListByUser_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPrefixRepository(db)

	id1 := uuid.New()
	id2 := uuid.New()
	t1 := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	rows := newMockRows([][]any{
		{id1, int64(7), int64(100), int64(4), t1},
		{id2, int64(7), int64(0), int64(0), t2},
	})
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	prefixes, err := repo.ListByUser(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, prefixes, 2)
	assert.Equal(t, id1, prefixes[0].ID)
	assert.Equal(t, int64(100), prefixes[0].Size)
	assert.Equal(t, id2, prefixes[1].ID)
}

func TestPrefixRepository_ListByUser_Empty(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPrefixRepository(db)

	rows := newMockRows(nil)
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	prefixes, err := repo.ListByUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, prefixes)
}

func TestPrefixRepository_AddUsage_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPrefixRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.AddUsage(context.Background(), uuid.New(), 2048, 1)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestPrefixRepository_AddUsage_UnknownPrefix(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPrefixRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.AddUsage(context.Background(), uuid.New(), 2048, 1)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundPrefix, appErr.Code)
}

package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"accounting/internal/types"
)

// Note: mockDBTX, mockRow, and mockRows are defined in user_repo_test.go

func TestProfileRepository_Create_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)

	profile := &types.Profile{
		UserID:                 7,
		SubscribedPlanID:       types.FreePlanID,
		NeedsConfirmationAfter: time.Now().UTC().Add(48 * time.Hour),
		CreatedAt:              time.Now().UTC(),
	}

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Create(context.Background(), profile)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestProfileRepository_GetByUserID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)

	now := time.Now().UTC()
	nextMail := now.Add(24 * time.Hour)
	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*int64) = 7
			*dest[1].(*string) = "pro"
			*dest[2].(*bool) = false
			*dest[3].(*time.Time) = now.Add(48 * time.Hour)
			*dest[4].(**time.Time) = &nextMail
			*dest[5].(*int64) = 1024
			*dest[6].(*int64) = 3
			*dest[7].(*bool) = true
			*dest[8].(*bool) = false
			*dest[9].(*time.Time) = now
			return nil
		},
	}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	profile, err := repo.GetByUserID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), profile.UserID)
	assert.Equal(t, "pro", profile.SubscribedPlanID)
	require.NotNil(t, profile.NextConfirmationMail)
	assert.Equal(t, nextMail, *profile.NextConfirmationMail)
	assert.Equal(t, int64(1024), profile.UsedStorage)
	assert.True(t, profile.PlusNotificationMail)
}

func TestProfileRepository_GetByUserID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)

	row := &mockRow{scanErr: pgx.ErrNoRows}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	_, err := repo.GetByUserID(context.Background(), 999)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundProfile, appErr.Code)
}

func TestProfileRepository_GetByEmail_UnknownUser(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)

	row := &mockRow{scanErr: pgx.ErrNoRows}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	_, err := repo.GetByEmail(context.Background(), "nobody@example.net")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundUser, appErr.Code)
}

func TestProfileRepository_SetSubscribedPlan_UnknownProfile(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.SetSubscribedPlan(context.Background(), 999, "pro")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundProfile, appErr.Code)
}

func TestProfileRepository_AddUsage_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.AddUsage(context.Background(), 7, 2048, 1)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestProfileRepository_ReserveConfirmationMail_Won(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)

	prev := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	next := prev.Add(24 * time.Hour)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	won, err := repo.ReserveConfirmationMail(context.Background(), 7, &prev, next)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestProfileRepository_ReserveConfirmationMail_Lost(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)

	prev := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	// A concurrent caller already advanced the cool-down, so the swap
	// matches nothing. That is a clean loss, not an error.
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	won, err := repo.ReserveConfirmationMail(context.Background(), 7, &prev, prev.Add(24*time.Hour))
	require.NoError(t, err)
	assert.False(t, won)
}

func TestProfileRepository_ReserveConfirmationMail_FirstSend(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)

	var captured []any
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).([]any)
		}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	// prev is nil before any mail was ever sent; the comparison must be
	// passed through as NULL rather than dropped.
	won, err := repo.ReserveConfirmationMail(context.Background(), 7, nil, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, won)
	require.Len(t, captured, 3)
	assert.Nil(t, captured[2])
}

func TestProfileRepository_ReserveConfirmationMail_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	_, err := repo.ReserveConfirmationMail(context.Background(), 7, nil, time.Now().UTC())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestProfileRepository_RestoreConfirmationMail_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)

	prev := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.RestoreConfirmationMail(context.Background(), 7, &prev)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

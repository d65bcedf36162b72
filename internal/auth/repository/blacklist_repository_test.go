package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authdomain "github.com/AlibekovAA/worktime/backend/internal/auth/domain"
	"github.com/AlibekovAA/worktime/backend/internal/auth/repository"
)

func TestBlacklistRepository_Add(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	entry := authdomain.BlacklistEntry{
		JTI:       "jti-1",
		UserID:    "user-1",
		ExpiresAt: now.Add(15 * time.Minute),
		Reason:    "logout",
		CreatedAt: now,
	}

	mock.ExpectExec("INSERT INTO token_blacklist (.+) ON CONFLICT \\(jti\\) DO NOTHING").
		WithArgs(entry.JTI, entry.UserID, entry.ExpiresAt, entry.Reason, entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO token_blacklist").
		WithArgs(entry.JTI, entry.UserID, entry.ExpiresAt, entry.Reason, entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	repo := repository.NewPgBlacklistRepository(mock)

	inserted, err := repo.Add(context.Background(), entry)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Add(context.Background(), entry)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBlacklistRepository_UpsertUserMarker(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	entry := authdomain.BlacklistEntry{
		JTI:       authdomain.UserMarkerJTI("user-1"),
		UserID:    "user-1",
		ExpiresAt: now.Add(15 * time.Minute),
		Reason:    "security_logout",
		CreatedAt: now,
	}

	mock.ExpectExec("INSERT INTO token_blacklist (.+) ON CONFLICT \\(jti\\) DO UPDATE").
		WithArgs(entry.JTI, entry.UserID, entry.ExpiresAt, entry.Reason, entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repository.NewPgBlacklistRepository(mock).UpsertUserMarker(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBlacklistRepository_IsBlacklisted(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("present", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("jti-1", now).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		ok, err := repository.NewPgBlacklistRepository(mock).IsBlacklisted(ctx, "jti-1", now)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("jti-1", now).
			WillReturnError(errors.New("timeout"))

		_, err = repository.NewPgBlacklistRepository(mock).IsBlacklisted(ctx, "jti-1", now)
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBlacklistRepository_IsRevokedForUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	issuedAt := now.Add(-time.Minute)
	mock.ExpectQuery(`SELECT EXISTS(?s:.+)jti = \$2 AND created_at > \$4`).
		WithArgs("jti-1", "user_user-1_*", now, issuedAt).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := repository.NewPgBlacklistRepository(mock).
		IsRevokedForUser(context.Background(), "jti-1", "user_user-1_*", issuedAt, now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBlacklistRepository_DeleteExpiredAndStats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM token_blacklist").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectQuery("SELECT (.+) FROM token_blacklist").
		WithArgs(now).
		WillReturnRows(pgxmock.NewRows([]string{"total", "active", "logout", "security_logout"}).
			AddRow(int64(5), int64(3), int64(4), int64(1)))

	repo := repository.NewPgBlacklistRepository(mock)

	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	stats, err := repo.Stats(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, authdomain.BlacklistStats{Total: 5, Active: 3, Logout: 4, SecurityLogout: 1}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

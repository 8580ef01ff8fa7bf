package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mmuslimabdulj/goat-whisper/internal/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := Open(":memory:", logger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewRepository(db)
}

func createAccount(t *testing.T, repo *Repository, email string) *Account {
	t.Helper()
	a := &Account{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         "Test",
		PasswordHash: "hash",
	}
	require.NoError(t, repo.Create(context.Background(), a))
	return a
}

func TestRepository_CreateAndFind(t *testing.T) {
	req := require.New(t)
	repo := setupTestRepo(t)
	ctx := context.Background()

	a := createAccount(t, repo, "john@test.com")

	byID, err := repo.FindByID(ctx, a.ID)
	req.NoError(err)
	req.Equal("john@test.com", byID.Email)
	req.False(byID.IsOnline)
	req.Nil(byID.LastSeen)

	byEmail, err := repo.FindByEmail(ctx, "john@test.com")
	req.NoError(err)
	req.Equal(a.ID, byEmail.ID)
	req.Equal(domain.Identity{ID: a.ID, Email: "john@test.com", Role: domain.RoleUser}, byEmail.Identity())

	_, err = repo.FindByEmail(ctx, "nobody@test.com")
	req.ErrorIs(err, ErrNotFound)
}

func TestRepository_DuplicateEmail(t *testing.T) {
	repo := setupTestRepo(t)
	createAccount(t, repo, "john@test.com")

	err := repo.Create(context.Background(), &Account{
		ID:           uuid.New().String(),
		Email:        "john@test.com",
		PasswordHash: "hash",
	})
	require.Error(t, err)
}

func TestRepository_Exists(t *testing.T) {
	req := require.New(t)
	repo := setupTestRepo(t)
	a := createAccount(t, repo, "john@test.com")

	ok, err := repo.Exists(context.Background(), a.ID)
	req.NoError(err)
	req.True(ok)

	ok, err = repo.Exists(context.Background(), "missing")
	req.NoError(err)
	req.False(ok)
}

func TestRepository_SetPresence(t *testing.T) {
	req := require.New(t)
	repo := setupTestRepo(t)
	ctx := context.Background()
	a := createAccount(t, repo, "john@test.com")

	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	req.NoError(repo.SetPresence(ctx, a.ID, true, seen))

	got, err := repo.FindByID(ctx, a.ID)
	req.NoError(err)
	req.True(got.IsOnline)
	req.NotNil(got.LastSeen)
	req.True(seen.Equal(*got.LastSeen))

	req.NoError(repo.SetPresence(ctx, a.ID, false, seen.Add(time.Minute)))
	got, err = repo.FindByID(ctx, a.ID)
	req.NoError(err)
	req.False(got.IsOnline)

	req.ErrorIs(repo.SetPresence(ctx, "missing", true, seen), ErrNotFound)
}

func TestRepository_ResetPresence(t *testing.T) {
	req := require.New(t)
	repo := setupTestRepo(t)
	ctx := context.Background()

	a := createAccount(t, repo, "a@test.com")
	b := createAccount(t, repo, "b@test.com")
	createAccount(t, repo, "c@test.com")
	req.NoError(repo.SetPresence(ctx, a.ID, true, time.Now()))
	req.NoError(repo.SetPresence(ctx, b.ID, true, time.Now()))

	n, err := repo.ResetPresence(ctx)
	req.NoError(err)
	req.EqualValues(2, n)

	all, err := repo.FindAll(ctx)
	req.NoError(err)
	req.Len(all, 3)
	for _, acc := range all {
		req.False(acc.IsOnline, acc.Email)
	}
}

func TestCachedDirectory(t *testing.T) {
	req := require.New(t)
	repo := setupTestRepo(t)
	ctx := context.Background()
	dir := NewCachedDirectory(repo, time.Minute)

	ok, err := dir.Exists(ctx, "late")
	req.NoError(err)
	req.False(ok)

	// misses are not cached, so an account created afterwards is found
	late := &Account{ID: "late", Email: "late@test.com", PasswordHash: "hash"}
	req.NoError(repo.Create(ctx, late))
	ok, err = dir.Exists(ctx, "late")
	req.NoError(err)
	req.True(ok)

	// hits are served from the cache even if the row disappears
	req.NoError(repo.db.Delete(&Account{}, "id = ?", "late").Error)
	ok, err = dir.Exists(ctx, "late")
	req.NoError(err)
	req.True(ok)

	dir.Forget("late")
	ok, err = dir.Exists(ctx, "late")
	req.NoError(err)
	req.False(ok)
}

func TestCachedDirectory_SetPresenceWritesThrough(t *testing.T) {
	req := require.New(t)
	repo := setupTestRepo(t)
	ctx := context.Background()
	a := createAccount(t, repo, "john@test.com")
	dir := NewCachedDirectory(repo, 0)

	req.NoError(dir.SetPresence(ctx, a.ID, true, time.Now()))
	got, err := repo.FindByID(ctx, a.ID)
	req.NoError(err)
	req.True(got.IsOnline)
}

func TestCachedDirectory_SetPresenceForgetsDeletedAccount(t *testing.T) {
	req := require.New(t)
	repo := setupTestRepo(t)
	ctx := context.Background()
	a := createAccount(t, repo, "gone@test.com")
	dir := NewCachedDirectory(repo, 0)

	ok, err := dir.Exists(ctx, a.ID)
	req.NoError(err)
	req.True(ok)

	req.NoError(repo.db.Delete(&Account{}, "id = ?", a.ID).Error)
	req.ErrorIs(dir.SetPresence(ctx, a.ID, false, time.Now()), ErrNotFound)

	ok, err = dir.Exists(ctx, a.ID)
	req.NoError(err)
	req.False(ok, "the stale cache entry was dropped")
}

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mmuslimabdulj/goat-whisper/internal/auth"
	"github.com/mmuslimabdulj/goat-whisper/internal/domain"
	"github.com/mmuslimabdulj/goat-whisper/internal/encryption"
	"github.com/mmuslimabdulj/goat-whisper/internal/repository/accounts"
	"github.com/mmuslimabdulj/goat-whisper/internal/repository/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

const (
	testKey    = "12345678901234567890123456789012"
	testIV     = "1234567890123456"
	testSecret = "cli-test-secret"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("ENCRYPTION_KEY", testKey)
	t.Setenv("ENCRYPTION_IV", testIV)
	t.Setenv("DATABASE_PATH", filepath.Join(dir, "accounts.db"))
	t.Setenv("BADGER_PATH", filepath.Join(dir, "messages"))
	t.Setenv("LOG_LEVEL", "silent")
	return dir
}

func executeCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), err
}

func findAccount(t *testing.T, dir, email string) *accounts.Account {
	t.Helper()
	db, err := accounts.Open(filepath.Join(dir, "accounts.db"), logger.Silent)
	require.NoError(t, err)
	defer func() {
		sqlDB, err := db.DB()
		require.NoError(t, err)
		require.NoError(t, sqlDB.Close())
	}()
	acc, err := accounts.NewRepository(db).FindByEmail(context.Background(), email)
	require.NoError(t, err)
	return acc
}

func TestSeedCreatesDefaultUsersOnce(t *testing.T) {
	setupEnv(t)

	stdout, err := executeCLI(t, "seed", "--cost", "4")
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(stdout, "created user:"))
	assert.Contains(t, stdout, "john@test.com")

	stdout, err = executeCLI(t, "seed", "--cost", "4")
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(stdout, "user already exists:"))
	assert.NotContains(t, stdout, "created user:")
}

func TestSeedCustomUser(t *testing.T) {
	dir := setupEnv(t)

	stdout, err := executeCLI(t, "seed", "--cost", "4", "--admin", "--password", "s3cret", "Eve Adams <EVE@test.com>")
	require.NoError(t, err)
	assert.Contains(t, stdout, "created user: eve@test.com")

	acc := findAccount(t, dir, "eve@test.com")
	assert.Equal(t, "Eve Adams", acc.Name)
	assert.Equal(t, domain.RoleAdmin, acc.Role)
	assert.NotEqual(t, "s3cret", acc.PasswordHash)
}

func TestTokenIssuesVerifiableToken(t *testing.T) {
	dir := setupEnv(t)
	_, err := executeCLI(t, "seed", "--cost", "4")
	require.NoError(t, err)

	stdout, err := executeCLI(t, "token", "jane@test.com", "--ttl", "1h")
	require.NoError(t, err)

	authn, err := auth.NewAuthenticator(auth.Config{Secret: testSecret, Issuer: "goat-whisper"})
	require.NoError(t, err)
	id, err := authn.Authenticate(strings.TrimSpace(stdout))
	require.NoError(t, err)

	acc := findAccount(t, dir, "jane@test.com")
	assert.Equal(t, acc.ID, id.ID)
	assert.Equal(t, "jane@test.com", id.Email)
	assert.Equal(t, domain.RoleUser, id.Role)
}

func TestTokenUnknownAccount(t *testing.T) {
	setupEnv(t)

	_, err := executeCLI(t, "token", "nobody@test.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, accounts.ErrNotFound)
}

func TestHistoryAndUnread(t *testing.T) {
	dir := setupEnv(t)
	_, err := executeCLI(t, "seed", "--cost", "4")
	require.NoError(t, err)

	john := findAccount(t, dir, "john@test.com")
	jane := findAccount(t, dir, "jane@test.com")

	cipher, err := encryption.New([]byte(testKey), []byte(testIV))
	require.NoError(t, err)
	kv, err := messages.Open(filepath.Join(dir, "messages"), zap.NewNop())
	require.NoError(t, err)
	store := messages.NewStore(kv, zap.NewNop())
	for i, text := range []string{"hi jane", "hi john", "lunch?"} {
		from, to := john.ID, jane.ID
		if i == 1 {
			from, to = jane.ID, john.ID
		}
		sealed, err := cipher.Encrypt(text)
		require.NoError(t, err)
		_, err = store.Create(context.Background(), domain.NewMessage{SenderID: from, ReceiverID: to, ContentEncrypted: sealed})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, kv.Close())

	stdout, err := executeCLI(t, "history", "john@test.com", "jane@test.com")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "hi jane")
	assert.Contains(t, lines[0], "john@test.com")
	assert.Contains(t, lines[1], "hi john")
	assert.Contains(t, lines[2], "lunch?")
	assert.Contains(t, lines[2], "unread")

	stdout, err = executeCLI(t, "history", "john@test.com", "jane@test.com", "--limit", "1")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(stdout), "\n")+1)
	assert.Contains(t, stdout, "lunch?")

	stdout, err = executeCLI(t, "unread", "jane@test.com")
	require.NoError(t, err)
	assert.Equal(t, "jane@test.com\t2\n", stdout)
}

func TestMessageShowsOneDecryptedMessage(t *testing.T) {
	dir := setupEnv(t)
	_, err := executeCLI(t, "seed", "--cost", "4")
	require.NoError(t, err)

	john := findAccount(t, dir, "john@test.com")
	jane := findAccount(t, dir, "jane@test.com")

	cipher, err := encryption.New([]byte(testKey), []byte(testIV))
	require.NoError(t, err)
	kv, err := messages.Open(filepath.Join(dir, "messages"), zap.NewNop())
	require.NoError(t, err)
	sealed, err := cipher.Encrypt("see you at noon")
	require.NoError(t, err)
	msg, err := messages.NewStore(kv, zap.NewNop()).Create(context.Background(),
		domain.NewMessage{SenderID: john.ID, ReceiverID: jane.ID, ContentEncrypted: sealed})
	require.NoError(t, err)
	require.NoError(t, kv.Close())

	stdout, err := executeCLI(t, "message", msg.ID)
	require.NoError(t, err)
	assert.Contains(t, stdout, msg.ID)
	assert.Regexp(t, `from:\s+john@test.com`, stdout)
	assert.Regexp(t, `to:\s+jane@test.com`, stdout)
	assert.Regexp(t, `read:\s+false`, stdout)
	assert.Regexp(t, `content:\s+see you at noon`, stdout)

	_, err = executeCLI(t, "message", "does-not-exist")
	require.Error(t, err)
	assert.ErrorIs(t, err, messages.ErrNotFound)
}

func TestMissingConfiguration(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ENCRYPTION_KEY", "")
	t.Setenv("ENCRYPTION_IV", "")

	_, err := executeCLI(t, "seed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load configuration")
}

func TestParseSeedUser(t *testing.T) {
	tests := []struct {
		input   string
		want    seedUser
		wantErr bool
	}{
		{input: "Jane Smith <jane@test.com>", want: seedUser{Name: "Jane Smith", Email: "jane@test.com"}},
		{input: "Bob@Test.com", want: seedUser{Name: "Bob", Email: "bob@test.com"}},
		{input: "no-at-sign", wantErr: true},
		{input: "Name <nope>", wantErr: true},
	}

	for _, tc := range tests {
		got, err := parseSeedUser(tc.input)
		if tc.wantErr {
			require.Error(t, err, tc.input)
			continue
		}
		require.NoError(t, err, tc.input)
		require.Equal(t, tc.want, got)
	}
}

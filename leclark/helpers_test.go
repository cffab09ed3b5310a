package leclark

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// gormDB creates a temporary SQLite database for testing purposes.
func gormDB(t testing.TB) *gorm.DB {
	t.Helper()
	tmpdir := t.TempDir()
	dbfile := filepath.Join(tmpdir, fmt.Sprintf("%s.sqlite3", t.Name()))

	db, err := CreateDB(context.Background(), "sqlite", dbfile)
	if err != nil {
		t.Fatalf("error creating db: %v", err)
	}
	return db
}

func TestHashPassword(t *testing.T) {
	hashed, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hashed)
	assert.Contains(t, hashed, "$argon2id$")

	valid, err := verifyPassword(hashed, "hunter2")
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = verifyPassword(hashed, "hunter3")
	require.NoError(t, err)
	assert.False(t, valid)

	// Each hash gets a fresh salt
	rehashed, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, hashed, rehashed)
}

func TestVerifyPasswordBadFormat(t *testing.T) {
	_, err := verifyPassword("not-a-hash", "whatever")
	assert.Error(t, err)
}

func TestGenerateRandomHexString(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		s, err := generateRandomHexString(32)
		require.NoError(t, err)
		assert.Len(t, s, 32)
		assert.False(t, seen[s], "duplicate random string: %s", s)
		seen[s] = true
	}
}

func TestParseRoleIDs(t *testing.T) {
	assert.Nil(t, parseRoleIDs(""))
	assert.Equal(t, []string{"123"}, parseRoleIDs("123"))
	assert.Equal(
		t,
		[]string{"123", "456"},
		parseRoleIDs("123, 456"),
	)
	assert.Equal(
		t,
		[]string{"123", "456"},
		parseRoleIDs("123,,456,"),
	)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exact", truncate("exact", 5))
	assert.Len(t, truncate("something quite long", 10), 10)
}

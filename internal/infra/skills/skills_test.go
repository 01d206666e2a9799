package skills

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"mcpagg/internal/domain"
)

func TestStore_SetGetRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	require.NoError(t, store.Set("Alpha", "# Alpha usage\n\nCall ping first."))

	doc, err := store.Get("alpha")
	require.NoError(t, err)
	require.Equal(t, "# Alpha usage\n\nCall ping first.", doc)
	require.True(t, store.Exists("ALPHA"))
}

func TestStore_GetMissing(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	_, err := store.Get("ghost")
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeNotFound, code)
	require.False(t, store.Exists("ghost"))
}

func TestStore_SetRejectsOversizedDocument(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, nil)

	err := store.Set("alpha", strings.Repeat("x", MaxDocumentSize+1))
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeInvalidConfig, code)

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	require.Empty(t, entries)
}

func TestStore_SetAtSizeCap(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	require.NoError(t, store.Set("alpha", strings.Repeat("x", MaxDocumentSize)))
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	require.NoError(t, store.Set("alpha", "doc"))
	require.NoError(t, store.Delete("Alpha"))
	require.False(t, store.Exists("alpha"))
	require.NoError(t, store.Delete("alpha"))
}

func TestStore_FileNameIsCanonical(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, nil)

	require.NoError(t, store.Set("  MiXeD  ", "doc"))
	_, err := os.Stat(filepath.Join(dir, "mixed.md"))
	require.NoError(t, err)
}

func TestStore_RejectsPathTraversal(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	err := store.Set("../escape", "doc")
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeInvalidConfig, code)

	err = store.Set("", "doc")
	code, ok = domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeInvalidConfig, code)
}

func TestStore_SetOverwrites(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	require.NoError(t, store.Set("alpha", "v1"))
	require.NoError(t, store.Set("alpha", "v2"))

	doc, err := store.Get("alpha")
	require.NoError(t, err)
	require.Equal(t, "v2", doc)
}

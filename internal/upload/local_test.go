package upload

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveOpenRemove(t *testing.T) {
	store, err := NewLocal(t.TempDir(), 10, []string{".pdf", "docx"})
	require.NoError(t, err)

	ref, err := store.Save(strings.NewReader("%PDF-1.4 content"), "treaty.pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, ref)
	// Stored name is random, only the extension survives.
	assert.NotContains(t, string(ref), "treaty")
	assert.True(t, strings.HasSuffix(string(ref), ".pdf"))

	f, err := store.Open(ref)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "%PDF-1.4 content", string(data))

	require.NoError(t, store.Remove(ref))
	_, err = store.Open(ref)
	assert.Error(t, err)

	// Removing twice is fine.
	assert.NoError(t, store.Remove(ref))
}

func TestSaveRejectsDisallowedExtension(t *testing.T) {
	store, err := NewLocal(t.TempDir(), 10, []string{".pdf"})
	require.NoError(t, err)

	_, err = store.Save(strings.NewReader("MZ"), "malware.exe")
	assert.ErrorIs(t, err, ErrBadExtension)
}

func TestSaveEnforcesSizeCap(t *testing.T) {
	store, err := NewLocal(t.TempDir(), 1, []string{".pdf"})
	require.NoError(t, err)

	big := strings.NewReader(strings.Repeat("a", 1024*1024+1))
	_, err = store.Save(big, "big.pdf")
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestSaveSanitizesFilename(t *testing.T) {
	store, err := NewLocal(t.TempDir(), 10, []string{".pdf"})
	require.NoError(t, err)

	// Path traversal in the client filename must not escape the dir.
	ref, err := store.Save(strings.NewReader("x"), "../../etc/passwd.pdf")
	require.NoError(t, err)
	assert.NotContains(t, string(ref), "..")

	f, err := store.Open(ref)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestEmptyAllowListAcceptsEverything(t *testing.T) {
	store, err := NewLocal(t.TempDir(), 10, nil)
	require.NoError(t, err)

	_, err = store.Save(strings.NewReader("x"), "anything.xyz")
	assert.NoError(t, err)
}

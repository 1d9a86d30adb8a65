package file

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/risa-org/wsc/session"
)

// tempPath returns a temp file path and registers cleanup.
func tempPath(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp("", "wsc-test-*.json")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	f.Close()
	os.Remove(f.Name()) // start with no file
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

func newSigner(t *testing.T) *session.TokenIssuer {
	t.Helper()
	issuer, err := session.NewRandomTokenIssuer()
	require.NoError(t, err)
	return issuer
}

func TestSetAndGet(t *testing.T) {
	store, err := New(tempPath(t), newSigner(t))
	require.NoError(t, err)

	require.NoError(t, store.Set("k", "v"))

	v, ok, err := store.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestPersistenceAcrossRestart(t *testing.T) {
	path := tempPath(t)
	signer := newSigner(t)

	store1, err := New(path, signer)
	require.NoError(t, err)
	require.NoError(t, store1.Set("a", "1"))
	require.NoError(t, store1.Set("b", "2"))

	store2, err := New(path, signer)
	require.NoError(t, err)

	v, ok, err := store2.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, 2, store2.Count())
}

func TestRemoveRemovesFromDisk(t *testing.T) {
	path := tempPath(t)
	signer := newSigner(t)

	store1, err := New(path, signer)
	require.NoError(t, err)
	require.NoError(t, store1.Set("k", "v"))
	require.NoError(t, store1.Remove("k"))

	store2, err := New(path, signer)
	require.NoError(t, err)
	_, ok, err := store2.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmptyFileOnFreshStart(t *testing.T) {
	store, err := New(tempPath(t), newSigner(t))
	require.NoError(t, err)
	assert.Equal(t, 0, store.Count())
}

func TestTamperedFileIsTreatedAsEmpty(t *testing.T) {
	path := tempPath(t)

	store1, err := New(path, newSigner(t))
	require.NoError(t, err)
	require.NoError(t, store1.Set("k", "v"))

	// reload with a different signer: the signature check must fail and
	// the store must start empty rather than error.
	store2, err := New(path, newSigner(t))
	require.NoError(t, err)
	assert.Equal(t, 0, store2.Count())
}

func TestCorruptFileIsTreatedAsEmpty(t *testing.T) {
	path := tempPath(t)
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	store, err := New(path, newSigner(t))
	require.NoError(t, err)
	assert.Equal(t, 0, store.Count())
}

func TestNoSignerSkipsVerification(t *testing.T) {
	path := tempPath(t)

	store1, err := New(path, nil)
	require.NoError(t, err)
	require.NoError(t, store1.Set("k", "v"))

	store2, err := New(path, nil)
	require.NoError(t, err)
	v, ok, err := store2.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

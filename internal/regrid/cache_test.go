package regrid

import (
	"encoding/gob"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCache_ComputeThenHit(t *testing.T) {
	c := NewCache(t.TempDir(), testLogger())

	w, hit, err := c.Weights(fineDef, coarseDef)
	require.NoError(t, err)
	assert.False(t, hit)
	require.NotNil(t, w)

	w2, hit, err := c.Weights(fineDef, coarseDef)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Same(t, w, w2)
}

func TestCache_DiskPersistence(t *testing.T) {
	dir := t.TempDir()

	c1 := NewCache(dir, testLogger())
	w1, _, err := c1.Weights(fineDef, coarseDef)
	require.NoError(t, err)

	// A fresh cache over the same directory loads from disk.
	c2 := NewCache(dir, testLogger())
	w2, hit, err := c2.Weights(fineDef, coarseDef)
	require.NoError(t, err)
	assert.True(t, hit)
	if diff := cmp.Diff(w1, w2); diff != "" {
		t.Errorf("weights changed across persistence (-computed +loaded):\n%s", diff)
	}
}

func TestCache_MemoryOnly(t *testing.T) {
	c := NewCache("", testLogger())

	_, hit, err := c.Weights(fineDef, coarseDef)
	require.NoError(t, err)
	assert.False(t, hit)

	_, hit, err = c.Weights(fineDef, coarseDef)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestCache_DistinctPairs(t *testing.T) {
	c := NewCache(t.TempDir(), testLogger())

	_, _, err := c.Weights(fineDef, coarseDef)
	require.NoError(t, err)

	// A different target grid is a different cache entry.
	other := coarseDef
	other.Lat0 += 0.5
	other.NLat = 1
	_, hit, err := c.Weights(fineDef, other)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_StaleFileRegenerated(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, testLogger())

	// Plant a weight file under the right name but built for a different
	// grid pair, as if the grids changed under a stale cache directory.
	stale := &Weights{SrcHash: "deadbeef", DstHash: "deadbeef"}
	f, err := os.Create(filepath.Join(dir, "weights-"+pairKey(fineDef, coarseDef)+".gob"))
	require.NoError(t, err)
	require.NoError(t, gob.NewEncoder(f).Encode(stale))
	require.NoError(t, f.Close())

	w, hit, err := c.Weights(fineDef, coarseDef)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, fineDef.Hash(), w.SrcHash)
}

func TestCache_CorruptFileRegenerated(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, testLogger())

	path := filepath.Join(dir, "weights-"+pairKey(fineDef, coarseDef)+".gob")
	require.NoError(t, os.WriteFile(path, []byte("not a gob stream"), 0o644))

	w, hit, err := c.Weights(fineDef, coarseDef)
	require.NoError(t, err)
	assert.False(t, hit)
	require.NotNil(t, w)
}

package regrid

import (
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/thchilly/era5-forcing-etl/internal/grid"
)

// Cache holds interpolation weights keyed by the content hash of the grid
// pair, backed by gob files on disk so repeat runs skip the precomputation.
// Weight generation is a once-per-grid-pair critical section: the first
// goroutine to need a pair computes and persists it, concurrent callers
// wait rather than racing on a partial file.
type Cache struct {
	dir    string
	logger *slog.Logger

	mu  sync.Mutex
	mem map[string]*Weights
}

// NewCache creates a weight cache rooted at dir. An empty dir disables
// disk persistence; weights are then cached in memory only.
func NewCache(dir string, logger *slog.Logger) *Cache {
	return &Cache{
		dir:    dir,
		logger: logger,
		mem:    make(map[string]*Weights),
	}
}

// Weights returns the remapping weights for the grid pair, computing and
// persisting them on first use. The second return value reports whether
// the weights came from the cache.
func (c *Cache) Weights(src, dst grid.Def) (*Weights, bool, error) {
	key := pairKey(src, dst)

	c.mu.Lock()
	defer c.mu.Unlock()

	if w, ok := c.mem[key]; ok {
		return w, true, nil
	}

	if c.dir != "" {
		w, err := c.load(src, dst)
		switch {
		case err == nil:
			c.mem[key] = w
			return w, true, nil
		case errors.As(err, new(*StaleWeightsError)):
			c.logger.Warn("discarding stale weight file, regenerating", "error", err)
		case !os.IsNotExist(err):
			c.logger.Warn("weight cache read failed, regenerating", "error", err)
		}
	}

	w, err := ComputeWeights(src, dst)
	if err != nil {
		return nil, false, err
	}
	if c.dir != "" {
		if err := c.store(key, w); err != nil {
			// A failed write only costs recomputation next run.
			c.logger.Warn("weight cache write failed", "error", err)
		}
	}
	c.mem[key] = w
	return w, false, nil
}

func (c *Cache) load(src, dst grid.Def) (*Weights, error) {
	path := c.path(pairKey(src, dst))
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var w Weights
	if err := gob.NewDecoder(f).Decode(&w); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	// The file name already encodes the pair hash, but the stored hashes
	// are re-verified so a renamed or hand-edited file cannot smuggle in
	// weights for a different grid pair.
	if w.SrcHash != src.Hash() || w.DstHash != dst.Hash() {
		return nil, &StaleWeightsError{
			WantSrc: src.Hash(), WantDst: dst.Hash(),
			HaveSrc: w.SrcHash, HaveDst: w.DstHash,
		}
	}
	return &w, nil
}

func (c *Cache) store(key string, w *Weights) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	// Write to a temp file and rename so a crash mid-write never leaves a
	// corrupt weight file for the next run to trip over.
	tmp, err := os.CreateTemp(c.dir, "weights-*.tmp")
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(tmp).Encode(w); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.path(key))
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, "weights-"+key+".gob")
}

func pairKey(src, dst grid.Def) string {
	return src.Hash()[:16] + dst.Hash()[:16]
}

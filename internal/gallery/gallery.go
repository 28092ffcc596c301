// Package gallery holds the known-face gallery: reference embeddings built
// from a directory of images and shared read-only by every request.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/matcher"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/observability"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/vision"
)

// Gallery is an immutable snapshot of known faces in scan order.
type Gallery struct {
	entries  []models.GalleryEntry
	source   string
	loadedAt time.Time
}

// New builds a gallery from entries, renumbering ordinals in slice order.
func New(source string, entries []models.GalleryEntry) *Gallery {
	out := make([]models.GalleryEntry, len(entries))
	for i, e := range entries {
		e.Ordinal = i
		out[i] = e
	}
	return &Gallery{entries: out, source: source, loadedAt: time.Now()}
}

// Entries returns the entries in scan order. Callers must not modify the
// embeddings.
func (g *Gallery) Entries() []models.GalleryEntry {
	out := make([]models.GalleryEntry, len(g.entries))
	copy(out, g.entries)
	return out
}

func (g *Gallery) Len() int            { return len(g.entries) }
func (g *Gallery) Source() string      { return g.source }
func (g *Gallery) LoadedAt() time.Time { return g.loadedAt }
func (g *Gallery) Names() []string {
	names := make([]string, len(g.entries))
	for i, e := range g.entries {
		names[i] = e.Name
	}
	return names
}

// Nearest implements matcher.Index with a linear scan.
func (g *Gallery) Nearest(_ context.Context, probe []float32) (matcher.Neighbor, bool, error) {
	n, ok := matcher.Scan(g.entries, probe)
	return n, ok, nil
}

// LoadOptions tune Load.
type LoadOptions struct {
	// Workers bounds concurrent embedding; <= 0 means 1.
	Workers int
	// Progress, when set, is called once per processed file.
	Progress func()
}

// Load embeds every reference image in src. Files without a face or that
// fail to decode are skipped; a missing source yields an empty gallery.
// Results keep the source's order whatever the parallelism.
func Load(ctx context.Context, src Source, embedder vision.FaceEmbedder, opts LoadOptions) (*Gallery, error) {
	files, err := src.List(ctx)
	if errors.Is(err, ErrSourceMissing) {
		slog.Warn("gallery source not found, starting with an empty gallery", "source", src.String())
		return New(src.String(), nil), nil
	}
	if err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, opts.Workers))

	for i, f := range files {
		g.Go(func() error {
			if opts.Progress != nil {
				defer opts.Progress()
			}
			data, err := src.Read(gctx, f)
			if err != nil {
				return err
			}
			vec, err := embedder.Embed(gctx, data)
			switch {
			case errors.Is(err, vision.ErrNoFaceFound):
				slog.Debug("no face in reference image, skipping", "file", f.Base)
				return nil
			case errors.Is(err, vision.ErrInvalidImage):
				slog.Warn("unreadable reference image, skipping", "file", f.Base, "error", err)
				return nil
			case err != nil:
				return fmt.Errorf("embed %s: %w", f.Base, err)
			}
			vecs[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load gallery: %w", err)
	}

	entries := make([]models.GalleryEntry, 0, len(files))
	for i, f := range files {
		if vecs[i] == nil {
			continue
		}
		entries = append(entries, models.GalleryEntry{Name: NameFromFile(f.Base), Embedding: vecs[i]})
	}

	gal := New(src.String(), entries)
	slog.Info("gallery loaded", "source", src.String(), "files", len(files), "entries", gal.Len())
	return gal, nil
}

// Holder publishes the current gallery snapshot and swaps it on rescan.
// Concurrent rescans share one load.
type Holder struct {
	current atomic.Pointer[Gallery]
	reload  func(ctx context.Context) (*Gallery, error)
	group   singleflight.Group
}

// NewHolder wraps an initial snapshot. reload builds a replacement.
func NewHolder(initial *Gallery, reload func(ctx context.Context) (*Gallery, error)) *Holder {
	h := &Holder{reload: reload}
	h.set(initial)
	return h
}

func (h *Holder) set(g *Gallery) {
	h.current.Store(g)
	observability.GallerySize.Set(float64(g.Len()))
}

// Current returns the active snapshot.
func (h *Holder) Current() *Gallery {
	return h.current.Load()
}

// Nearest implements matcher.Index against the active snapshot.
func (h *Holder) Nearest(ctx context.Context, probe []float32) (matcher.Neighbor, bool, error) {
	return h.Current().Nearest(ctx, probe)
}

// Rescan reloads the gallery and swaps it in. The previous snapshot stays
// active if the reload fails.
func (h *Holder) Rescan(ctx context.Context) (*Gallery, error) {
	v, err, _ := h.group.Do("rescan", func() (any, error) {
		g, err := h.reload(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		h.set(g)
		return g, nil
	})
	if err != nil {
		return nil, fmt.Errorf("rescan gallery: %w", err)
	}
	return v.(*Gallery), nil
}

package gallery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/config"
)

// ErrSourceMissing means the reference location does not exist. Load treats
// it as an empty gallery.
var ErrSourceMissing = errors.New("gallery source missing")

// File is one reference image in a Source.
type File struct {
	Key  string // source-specific locator
	Base string // filename without directories
}

// Source enumerates reference images.
type Source interface {
	List(ctx context.Context) ([]File, error)
	Read(ctx context.Context, f File) ([]byte, error)
	String() string
}

// IsReferenceImage reports whether a filename is a .jpg or .png, any case.
func IsReferenceImage(base string) bool {
	switch strings.ToLower(filepath.Ext(base)) {
	case ".jpg", ".png":
		return true
	default:
		return false
	}
}

// NameFromFile derives the gallery name: extension stripped, lower-cased.
func NameFromFile(base string) string {
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

// DirSource reads reference images from a flat local directory.
type DirSource struct {
	Dir string
}

func (s DirSource) String() string { return "dir:" + s.Dir }

// List returns reference images in lexical filename order.
func (s DirSource) List(_ context.Context) ([]File, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSourceMissing, s.Dir)
	}
	if err != nil {
		return nil, fmt.Errorf("read gallery dir: %w", err)
	}

	var files []File
	for _, e := range entries {
		if e.IsDir() || !IsReferenceImage(e.Name()) {
			continue
		}
		files = append(files, File{Key: filepath.Join(s.Dir, e.Name()), Base: e.Name()})
	}
	return files, nil
}

func (s DirSource) Read(_ context.Context, f File) ([]byte, error) {
	data, err := os.ReadFile(f.Key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Base, err)
	}
	return data, nil
}

// ObjectStore is the subset of the object storage client the gallery needs.
type ObjectStore interface {
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// ObjectSource reads reference images stored under a bucket prefix. Only
// objects directly under the prefix are considered.
type ObjectSource struct {
	Store  ObjectStore
	Prefix string
}

func (s ObjectSource) String() string { return "objects:" + s.Prefix }

func (s ObjectSource) List(ctx context.Context) ([]File, error) {
	keys, err := s.Store.ListObjects(ctx, s.Prefix)
	if err != nil {
		return nil, fmt.Errorf("list gallery objects: %w", err)
	}
	sort.Strings(keys)

	var files []File
	for _, key := range keys {
		rel := strings.TrimPrefix(key, s.Prefix)
		if strings.Contains(strings.TrimPrefix(rel, "/"), "/") {
			continue
		}
		base := path.Base(key)
		if !IsReferenceImage(base) {
			continue
		}
		files = append(files, File{Key: key, Base: base})
	}
	return files, nil
}

func (s ObjectSource) Read(ctx context.Context, f File) ([]byte, error) {
	return s.Store.GetObject(ctx, f.Key)
}

// NewSource builds the configured reference source. objects is required for
// the MinIO source and ignored otherwise.
func NewSource(cfg config.GalleryConfig, objects ObjectStore) (Source, error) {
	switch cfg.Source {
	case config.GallerySourceDir:
		return DirSource{Dir: cfg.Dir}, nil
	case config.GallerySourceMinIO:
		if objects == nil {
			return nil, fmt.Errorf("gallery source %q needs an object store", cfg.Source)
		}
		return ObjectSource{Store: objects, Prefix: cfg.Prefix}, nil
	default:
		return nil, fmt.Errorf("unsupported gallery source %q", cfg.Source)
	}
}

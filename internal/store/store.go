package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrNoOutputProduced = errors.New("no output produced")

// partial-download suffixes yt-dlp leaves behind while (or after failing) writing
var partialSuffixes = []string{".part", ".ytdl", ".temp", ".tmp"}

const workspacePrefix = "ws-"

// Store owns the transient root. Every request gets its own workspace below it.
type Store struct {
	root   string
	active atomic.Int64
}

type File struct {
	Path      string
	Name      string
	CreatedAt time.Time
	SizeBytes int64
}

type Workspace struct {
	ID      string
	Dir     string
	store   *Store
	once    sync.Once
	release error
}

func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("error resolving transient root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("error creating transient root: %w", err)
	}
	return &Store{root: abs}, nil
}

func (s *Store) Root() string {
	return s.root
}

// Active reports workspaces created and not yet released.
func (s *Store) Active() int {
	return int(s.active.Load())
}

// Create allocates a fresh, empty workspace directory. IDs are UUIDv7 so they
// are unique across concurrent requests and sort by creation time.
func (s *Store) Create() (*Workspace, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("error generating workspace id: %w", err)
	}
	dir := filepath.Join(s.root, workspacePrefix+id.String())
	if err := os.Mkdir(dir, 0755); err != nil {
		return nil, fmt.Errorf("error creating workspace: %w", err)
	}
	s.active.Add(1)
	log.Debug().Str("op", "store/create").Str("workspace", id.String()).Msg("Workspace created")
	return &Workspace{ID: id.String(), Dir: dir, store: s}, nil
}

// Discover returns the media file written into the workspace. Partial files
// and directories are skipped; if several candidates exist the most recently
// modified wins.
func (w *Workspace) Discover() (*File, error) {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return nil, fmt.Errorf("error listing workspace: %w", err)
	}
	var newest *File
	for _, entry := range entries {
		if !entry.Type().IsRegular() || isPartial(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error reading file info: %w", err)
		}
		if newest == nil || info.ModTime().After(newest.CreatedAt) {
			newest = &File{
				Path:      filepath.Join(w.Dir, entry.Name()),
				Name:      entry.Name(),
				CreatedAt: info.ModTime(),
				SizeBytes: info.Size(),
			}
		}
	}
	if newest == nil {
		return nil, ErrNoOutputProduced
	}
	return newest, nil
}

// Release removes the workspace and everything in it. Only the first call
// does any work; later calls return the first result.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		w.release = os.RemoveAll(w.Dir)
		w.store.active.Add(-1)
		if w.release != nil {
			log.Error().Str("op", "store/release").Str("workspace", w.ID).Err(w.release).Msg("Error removing workspace")
			return
		}
		log.Debug().Str("op", "store/release").Str("workspace", w.ID).Msg("Workspace released")
	})
	return w.release
}

// Sweep deletes workspaces last modified more than olderThan ago. It recovers
// space after a crash skipped the normal release path.
func (s *Store) Sweep(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("error listing transient root: %w", err)
	}
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), workspacePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	log.Debug().Str("op", "store/sweep").Int("removed", removed).Msg("Transient root swept")
	return removed, errors.Join(errs...)
}

func isPartial(name string) bool {
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return strings.Contains(name, ".part-Frag")
}

// Package store hands out unique on-disk locations for downloads and
// removes them once the audio has been delivered.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExtPlaceholder is the yt-dlp output template field for the file extension.
const ExtPlaceholder = "%(ext)s"

// partial suffixes yt-dlp leaves behind while a download is in flight.
var partialSuffixes = []string{".part", ".ytdl", ".temp"}

var mediaTypes = map[string]string{
	".m4a":  "audio/mp4",
	".webm": "audio/webm",
	".opus": "audio/opus",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
}

// MediaType returns the content type for an audio file path,
// falling back to audio/mpeg.
func MediaType(path string) string {
	if t, ok := mediaTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return t
	}
	return "audio/mpeg"
}

// Slot is an allocated, not yet written, download location.
type Slot struct {
	ID        string
	Template  string
	CreatedAt time.Time
}

// File is a downloaded audio file owned by a single request.
type File struct {
	ID        string
	Path      string
	Size      int64
	MediaType string
	CreatedAt time.Time
}

// Name is the file's base name, used as the download filename.
func (f *File) Name() string { return filepath.Base(f.Path) }

// Store manages transient files under a single directory.
type Store struct {
	dir string
	log *slog.Logger
}

// New creates the directory if needed.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir %s: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, log: logger.With("component", "store")}, nil
}

// Dir returns the managed directory.
func (s *Store) Dir() string { return s.dir }

// Allocate reserves a unique identifier and its output template.
func (s *Store) Allocate() (Slot, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return Slot{}, fmt.Errorf("allocate file id: %w", err)
	}
	return Slot{
		ID:        id.String(),
		Template:  filepath.Join(s.dir, id.String()+"."+ExtPlaceholder),
		CreatedAt: time.Now(),
	}, nil
}

// Locate resolves the file yt-dlp produced for id. It returns nil when
// no complete file exists.
func (s *Store) Locate(id string) (*File, error) {
	matches, err := s.artifacts(id)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	for _, m := range matches {
		if isPartial(m) {
			continue
		}
		info, err := os.Stat(m)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", m, err)
		}
		if info.IsDir() {
			continue
		}
		return &File{
			ID:        id,
			Path:      m,
			Size:      info.Size(),
			MediaType: MediaType(m),
			CreatedAt: info.ModTime(),
		}, nil
	}
	return nil, nil
}

// Release deletes path. Failures are logged, never returned: the caller
// has already decided the outcome of the request.
func (s *Store) Release(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		s.log.Error("Failed to clean up file", "path", path, "error", err)
		return
	}
	s.log.Info("Cleaned up file", "path", path)
}

// Discard releases every artifact left for id, including partial downloads.
func (s *Store) Discard(id string) {
	matches, err := s.artifacts(id)
	if err != nil {
		s.log.Error("Failed to list artifacts", "id", id, "error", err)
		return
	}
	for _, m := range matches {
		s.Release(m)
	}
}

func (s *Store) artifacts(id string) ([]string, error) {
	if id == "" || strings.ContainsAny(id, `/\*?[`) {
		return nil, fmt.Errorf("invalid file id %q", id)
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, id+".*"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", id, err)
	}
	return matches, nil
}

func isPartial(path string) bool {
	for _, suf := range partialSuffixes {
		if strings.HasSuffix(path, suf) {
			return true
		}
	}
	return false
}

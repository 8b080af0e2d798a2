package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"photobooth/internal/domain"
)

const (
	artifactExt   = ".png"
	artifactMIME  = "image/png"
	pendingPrefix = ".pending-"

	// DefaultPendingGrace is how old an uncommitted write must be before a
	// sweep treats it as abandoned.
	DefaultPendingGrace = 15 * time.Minute
)

var idPattern = regexp.MustCompile(`^[0-9A-Za-z][0-9A-Za-z_-]{0,127}$`)

// SweepRecorder receives the outcome of every retention pass.
type SweepRecorder interface {
	ObserveSweep(policy string, removed int, err error)
}

// Options configures an ArtifactStore.
type Options struct {
	Policy   Policy
	Logger   zerolog.Logger
	Recorder SweepRecorder
	Now      func() time.Time
	// PendingGrace defaults to DefaultPendingGrace.
	PendingGrace time.Duration
}

// ArtifactStore persists finished artifacts onto the local filesystem and
// enforces the configured retention policy over them. The directory is the
// only source of truth: an artifact exists exactly while its file does.
type ArtifactStore struct {
	basePath string
	policy   Policy
	logger   zerolog.Logger
	recorder SweepRecorder
	now      func() time.Time
	grace    time.Duration
}

// Entry is a snapshot of one completed artifact on disk.
type Entry struct {
	ID      string
	Path    string
	ModTime time.Time
	Size    int64
}

// NewArtifactStore initializes an ArtifactStore rooted at basePath.
func NewArtifactStore(basePath string, opts Options) (*ArtifactStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if opts.Policy == nil {
		return nil, errors.New("storage: retention policy is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	grace := opts.PendingGrace
	if grace <= 0 {
		grace = DefaultPendingGrace
	}
	return &ArtifactStore{
		basePath: basePath,
		policy:   opts.Policy,
		logger:   opts.Logger,
		recorder: opts.Recorder,
		now:      now,
		grace:    grace,
	}, nil
}

// BasePath returns the configured root directory.
func (s *ArtifactStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Policy returns the active retention policy.
func (s *ArtifactStore) Policy() Policy {
	return s.policy
}

// NewArtifactID returns a path-safe identifier: creation time in milliseconds
// plus 48 random bits.
func NewArtifactID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix)
}

// ValidateID rejects anything that could escape the artifact directory.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) || strings.Contains(id, "..") {
		return domain.ErrInvalidID
	}
	return nil
}

func (s *ArtifactStore) pathFor(id string) string {
	return filepath.Join(s.basePath, id+artifactExt)
}

// Save writes data under a fresh identifier. The bytes are written to a
// pending file, synced and renamed into place before the artifact is
// returned, so a returned id always refers to a complete file.
func (s *ArtifactStore) Save(ctx context.Context, data []byte) (*domain.Artifact, error) {
	if s == nil {
		return nil, errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("storage: empty artifact")
	}

	now := s.now()
	id := NewArtifactID(now)
	finalPath := s.pathFor(id)

	tmp, err := os.CreateTemp(s.basePath, pendingPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("storage: create pending file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("storage: write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("storage: sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("storage: close file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return nil, fmt.Errorf("storage: chmod file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return nil, fmt.Errorf("storage: commit file: %w", err)
	}
	committed = true

	artifact := &domain.Artifact{
		ID:        id,
		Path:      finalPath,
		MIMEType:  artifactMIME,
		Bytes:     int64(len(data)),
		CreatedAt: now,
	}

	if s.policy.SweepAfterWrite() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error().Err(err).Str("artifact_id", id).Msg("storage: retention after write failed")
		}
	}

	return artifact, nil
}

// Open returns the artifact file for id. Malformed ids are reported as
// not found so callers cannot probe the filesystem.
func (s *ArtifactStore) Open(id string) (*os.File, fs.FileInfo, error) {
	if err := ValidateID(id); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	f, err := os.Open(s.pathFor(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, domain.ErrNotFound
		}
		return nil, nil, fmt.Errorf("storage: open artifact: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("storage: stat artifact: %w", err)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, nil, domain.ErrNotFound
	}
	return f, info, nil
}

// Read loads the full artifact bytes for id.
func (s *ArtifactStore) Read(id string) ([]byte, error) {
	f, _, err := s.Open(id)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// List snapshots every completed artifact, newest first. Pending files and
// foreign names are skipped.
func (s *ArtifactStore) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("storage: list artifacts: %w", err)
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, artifactExt) {
			continue
		}
		id := strings.TrimSuffix(name, artifactExt)
		if ValidateID(id) != nil {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		entries = append(entries, Entry{
			ID:      id,
			Path:    filepath.Join(s.basePath, name),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	sortNewestFirst(entries)
	return entries, nil
}

// Sweep applies the retention policy once: snapshot, decide, delete.
func (s *ArtifactStore) Sweep(ctx context.Context) (int, error) {
	removed, err := s.sweep(ctx)
	if s.recorder != nil {
		s.recorder.ObserveSweep(s.policy.Name(), removed, err)
	}
	return removed, err
}

func (s *ArtifactStore) sweep(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	snapshot, err := s.List()
	if err != nil {
		return 0, err
	}
	victims := s.policy.Expired(s.now(), snapshot)
	removed := 0
	var errs []error
	for _, victim := range victims {
		if err := os.Remove(victim.Path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			errs = append(errs, fmt.Errorf("storage: remove %s: %w", victim.ID, err))
			continue
		}
		removed++
		s.logger.Debug().Str("artifact_id", victim.ID).Str("policy", s.policy.Name()).Msg("storage: artifact removed")
	}
	if err := s.removeStalePending(); err != nil {
		errs = append(errs, err)
	}
	return removed, errors.Join(errs...)
}

// removeStalePending deletes pending files left by writes that never reached
// the rename, e.g. after a crash. Fresh ones may belong to an in-flight Save.
func (s *ArtifactStore) removeStalePending() error {
	dirEntries, err := os.ReadDir(s.basePath)
	if err != nil {
		return fmt.Errorf("storage: list pending files: %w", err)
	}
	cutoff := s.now().Add(-s.grace)
	var errs []error
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, pendingPrefix) {
			continue
		}
		info, err := de.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.basePath, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("storage: remove pending %s: %w", name, err))
			continue
		}
		s.logger.Warn().Str("file", name).Time("modified", info.ModTime()).Msg("storage: abandoned pending write removed")
	}
	return errors.Join(errs...)
}

func sortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].ModTime.After(entries[j].ModTime)
		}
		return entries[i].ID > entries[j].ID
	})
}

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"photobooth/internal/domain"
)

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordingSweeps struct {
	mu      sync.Mutex
	removed int
	calls   int
}

func (r *recordingSweeps) ObserveSweep(policy string, removed int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.removed += removed
}

func newTestStore(t *testing.T, policy Policy, now func() time.Time) *ArtifactStore {
	t.Helper()
	store, err := NewArtifactStore(t.TempDir(), Options{Policy: policy, Logger: zerolog.Nop(), Now: now})
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}
	return store
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{id: "1718000000000-3f2a9c1d7b0e", valid: true},
		{id: "abc_DEF-123", valid: true},
		{id: "", valid: false},
		{id: "../../etc/passwd", valid: false},
		{id: "..", valid: false},
		{id: "a..b", valid: false},
		{id: "a/b", valid: false},
		{id: `a\b`, valid: false},
		{id: "-leading-dash", valid: false},
		{id: ".hidden", valid: false},
		{id: "name.png", valid: false},
		{id: "nul\x00byte", valid: false},
		{id: strings.Repeat("a", 129), valid: false},
	}
	for _, tc := range tests {
		t.Run(tc.id, func(t *testing.T) {
			err := ValidateID(tc.id)
			if tc.valid && err != nil {
				t.Fatalf("ValidateID(%q) unexpected error: %v", tc.id, err)
			}
			if !tc.valid && !errors.Is(err, domain.ErrInvalidID) {
				t.Fatalf("ValidateID(%q) = %v, want ErrInvalidID", tc.id, err)
			}
		})
	}
}

func TestNewArtifactIDIsPathSafeAndUnique(t *testing.T) {
	now := time.UnixMilli(1718000000000)
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewArtifactID(now)
		if err := ValidateID(id); err != nil {
			t.Fatalf("generated id %q is invalid: %v", id, err)
		}
		if !strings.HasPrefix(id, "1718000000000-") {
			t.Fatalf("id %q missing timestamp prefix", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestSaveCommitsCompleteFile(t *testing.T) {
	store := newTestStore(t, TTLPolicy{MaxAge: time.Hour}, nil)
	data := []byte("png-bytes")

	artifact, err := store.Save(context.Background(), data)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := os.ReadFile(artifact.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("artifact content mismatch: %q", got)
	}
	if artifact.Bytes != int64(len(data)) || artifact.MIMEType != "image/png" {
		t.Fatalf("artifact metadata mismatch: %+v", artifact)
	}
	if filepath.Dir(artifact.Path) != store.BasePath() {
		t.Fatalf("artifact written outside base path: %s", artifact.Path)
	}

	entries, err := os.ReadDir(store.BasePath())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), pendingPrefix) {
			t.Fatalf("pending file left behind: %s", e.Name())
		}
	}
}

func TestSaveRejectsCancelledContext(t *testing.T) {
	store := newTestStore(t, TTLPolicy{MaxAge: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Save(ctx, []byte("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("Save error = %v, want context.Canceled", err)
	}
}

func TestOpenRejectsTraversalAndMissing(t *testing.T) {
	store := newTestStore(t, TTLPolicy{MaxAge: time.Hour}, nil)
	secret := filepath.Join(filepath.Dir(store.BasePath()), "secret.png")
	if err := os.WriteFile(secret, []byte("secret"), 0o644); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	for _, id := range []string{"../secret", "../../etc/passwd", "1718000000000-missing", ""} {
		f, _, err := store.Open(id)
		if f != nil {
			f.Close()
			t.Fatalf("Open(%q) returned a file", id)
		}
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Open(%q) error = %v, want ErrNotFound", id, err)
		}
	}

	artifact, err := store.Save(context.Background(), []byte("ok"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := store.Read(artifact.ID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "ok" {
		t.Fatalf("Read content mismatch: %q", data)
	}
}

func TestListSkipsPendingAndForeignFiles(t *testing.T) {
	store := newTestStore(t, TTLPolicy{MaxAge: time.Hour}, nil)
	for _, name := range []string{pendingPrefix + "123", "notes.txt", ".hidden.png", "bad..id.png"} {
		if err := os.WriteFile(filepath.Join(store.BasePath(), name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(store.BasePath(), "dir.png"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	artifact, err := store.Save(context.Background(), []byte("ok"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != artifact.ID {
		t.Fatalf("List = %+v, want only %s", entries, artifact.ID)
	}
}

func TestCountPolicyKeepsMostRecent(t *testing.T) {
	tests := []struct {
		writes int
		keep   int
	}{
		{writes: 3, keep: 5},
		{writes: 5, keep: 5},
		{writes: 12, keep: 4},
		{writes: 7, keep: 1},
	}
	for _, tc := range tests {
		t.Run("", func(t *testing.T) {
			clock := &steppingClock{now: time.UnixMilli(1718000000000)}
			store := newTestStore(t, CountPolicy{Keep: tc.keep}, clock.Now)
			base := time.Now().Add(-time.Hour)

			var ids []string
			for i := 0; i < tc.writes; i++ {
				artifact, err := store.Save(context.Background(), []byte{byte(i)})
				if err != nil {
					t.Fatalf("Save #%d: %v", i, err)
				}
				mod := base.Add(time.Duration(i) * time.Second)
				if err := os.Chtimes(artifact.Path, mod, mod); err != nil {
					// already pruned by this write's own pass
					if !os.IsNotExist(err) {
						t.Fatalf("chtimes: %v", err)
					}
				}
				ids = append(ids, artifact.ID)
			}
			// one more pass so the last Chtimes is accounted for
			if _, err := store.Sweep(context.Background()); err != nil {
				t.Fatalf("Sweep: %v", err)
			}

			entries, err := store.List()
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			want := tc.writes
			if tc.keep < want {
				want = tc.keep
			}
			if len(entries) != want {
				t.Fatalf("remaining = %d, want %d", len(entries), want)
			}
			for i, e := range entries {
				expected := ids[len(ids)-1-i]
				if e.ID != expected {
					t.Fatalf("entries[%d] = %s, want %s", i, e.ID, expected)
				}
			}
		})
	}
}

func TestCountPolicyTieBreaksOnID(t *testing.T) {
	mod := time.Unix(1718000000, 0)
	snapshot := []Entry{
		{ID: "1000-a", ModTime: mod},
		{ID: "3000-c", ModTime: mod},
		{ID: "2000-b", ModTime: mod},
	}
	sortNewestFirst(snapshot)
	victims := CountPolicy{Keep: 2}.Expired(time.Now(), snapshot)
	if len(victims) != 1 || victims[0].ID != "1000-a" {
		t.Fatalf("victims = %+v, want 1000-a", victims)
	}
}

func TestTTLPolicySweep(t *testing.T) {
	now := time.Now()
	store := newTestStore(t, TTLPolicy{MaxAge: time.Hour}, func() time.Time { return now })
	recorder := &recordingSweeps{}
	store.recorder = recorder

	old, err := store.Save(context.Background(), []byte("old"))
	if err != nil {
		t.Fatalf("Save old: %v", err)
	}
	young, err := store.Save(context.Background(), []byte("young"))
	if err != nil {
		t.Fatalf("Save young: %v", err)
	}
	oldTime := now.Add(-61 * time.Minute)
	if err := os.Chtimes(old.Path, oldTime, oldTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	youngTime := now.Add(-59 * time.Minute)
	if err := os.Chtimes(young.Path, youngTime, youngTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed, err := store.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(old.Path); !os.IsNotExist(err) {
		t.Fatalf("old artifact still present: %v", err)
	}
	if _, err := os.Stat(young.Path); err != nil {
		t.Fatalf("young artifact missing: %v", err)
	}
	if recorder.calls != 1 || recorder.removed != 1 {
		t.Fatalf("recorder mismatch: %+v", recorder)
	}
}

func TestSweepRemovesAbandonedPendingWrites(t *testing.T) {
	now := time.Now()
	store, err := NewArtifactStore(t.TempDir(), Options{
		Policy:       TTLPolicy{MaxAge: time.Hour},
		Logger:       zerolog.Nop(),
		Now:          func() time.Time { return now },
		PendingGrace: 10 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}
	artifact, err := store.Save(context.Background(), []byte("keep"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	stale := filepath.Join(store.BasePath(), pendingPrefix+"crashed")
	fresh := filepath.Join(store.BasePath(), pendingPrefix+"inflight")
	for _, path := range []string{stale, fresh} {
		if err := os.WriteFile(path, []byte("partial"), 0o600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	staleTime := now.Add(-11 * time.Minute)
	if err := os.Chtimes(stale, staleTime, staleTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	freshTime := now.Add(-time.Minute)
	if err := os.Chtimes(fresh, freshTime, freshTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed, err := store.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, pending files must not count as artifacts", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("abandoned pending file still present: %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("in-flight pending file removed: %v", err)
	}
	if _, err := os.Stat(artifact.Path); err != nil {
		t.Fatalf("artifact removed: %v", err)
	}
}

func TestTTLPolicyDoesNotSweepOnWrite(t *testing.T) {
	now := time.Now()
	store := newTestStore(t, TTLPolicy{MaxAge: time.Minute}, func() time.Time { return now })
	old, err := store.Save(context.Background(), []byte("old"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	stale := now.Add(-time.Hour)
	if err := os.Chtimes(old.Path, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if _, err := store.Save(context.Background(), []byte("new")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(old.Path); err != nil {
		t.Fatalf("ttl policy must only prune on sweeps: %v", err)
	}
}

func TestJanitorRunOnceSurvivesMissingDirectory(t *testing.T) {
	store := newTestStore(t, TTLPolicy{MaxAge: time.Hour}, nil)
	if err := os.RemoveAll(store.BasePath()); err != nil {
		t.Fatalf("remove base: %v", err)
	}
	janitor := NewJanitor(store, time.Minute, zerolog.Nop())
	if removed := janitor.RunOnce(context.Background()); removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
}

func TestJanitorRunStopsOnCancel(t *testing.T) {
	now := time.Now()
	store := newTestStore(t, TTLPolicy{MaxAge: time.Hour}, func() time.Time { return now })
	artifact, err := store.Save(context.Background(), []byte("old"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	stale := now.Add(-2 * time.Hour)
	if err := os.Chtimes(artifact.Path, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewJanitor(store, time.Hour, zerolog.Nop()).Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for {
		if _, err := os.Stat(artifact.Path); os.IsNotExist(err) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("startup sweep did not remove stale artifact")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("janitor did not stop")
	}
}

func TestNewPolicy(t *testing.T) {
	p, err := NewPolicy("count", 0, 30)
	if err != nil || p.Name() != "count" {
		t.Fatalf("NewPolicy(count) = %v, %v", p, err)
	}
	p, err = NewPolicy("ttl", time.Hour, 0)
	if err != nil || p.Name() != "ttl" {
		t.Fatalf("NewPolicy(ttl) = %v, %v", p, err)
	}
	if _, err := NewPolicy("both", time.Hour, 30); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

package remote

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/pkg/sftp"
)

func connectedClient(t *testing.T, fs *fakeFS, cfg Config) *Client {
	t.Helper()
	c, _ := testClient(fs, cfg)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	return c
}

func TestWalkRecursive(t *testing.T) {
	mod := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)
	fs := &fakeFS{dirs: map[string][]os.FileInfo{
		"/docs/": {
			fakeInfo{name: "010001000005909.pdf", mod: mod},
			fakeInfo{name: "notes.txt"},
			fakeInfo{name: "2026", dir: true},
		},
		"/docs/2026": {
			fakeInfo{name: "010001000005910.PDF", mod: mod.Add(time.Hour)},
			fakeInfo{name: "old", dir: true},
		},
		"/docs/2026/old": {
			fakeInfo{name: "010001000005800.pdf", mod: mod.Add(-time.Hour)},
		},
	}}
	c := connectedClient(t, fs, Config{BaseDir: "/docs/", Extensions: []string{".pdf", ".PDF"}})

	entries := c.Walk("/docs/")
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3: %+v", len(entries), entries)
	}

	byPath := map[string]Entry{}
	for _, e := range entries {
		byPath[e.Path] = e
	}
	if _, ok := byPath["/docs/010001000005909.pdf"]; !ok {
		t.Errorf("missing top-level file; paths: %v", keysOf(byPath))
	}
	if e, ok := byPath["/docs/2026/010001000005910.PDF"]; !ok {
		t.Errorf("missing nested file; paths: %v", keysOf(byPath))
	} else if !e.ModTime.Equal(mod.Add(time.Hour)) {
		t.Errorf("ModTime = %v, want %v", e.ModTime, mod.Add(time.Hour))
	}
	if _, ok := byPath["/docs/2026/old/010001000005800.pdf"]; !ok {
		t.Errorf("missing doubly nested file; paths: %v", keysOf(byPath))
	}
}

func keysOf(m map[string]Entry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// A slash-terminated root must not produce double slashes in paths.
func TestWalkCollapsesSlashes(t *testing.T) {
	fs := &fakeFS{dirs: map[string][]os.FileInfo{
		"/docs/": {fakeInfo{name: "a.pdf"}},
	}}
	c := connectedClient(t, fs, Config{BaseDir: "/docs/", Extensions: []string{".pdf"}})

	entries := c.Walk("/docs/")
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Path != "/docs/a.pdf" {
		t.Errorf("Path = %q, want /docs/a.pdf", entries[0].Path)
	}
}

func TestWalkSkipsFailingSubtree(t *testing.T) {
	fs := &fakeFS{
		dirs: map[string][]os.FileInfo{
			"/docs": {
				fakeInfo{name: "ok.pdf"},
				fakeInfo{name: "secret", dir: true},
				fakeInfo{name: "also_ok.pdf"},
			},
		},
		readErr: map[string]error{"/docs/secret": os.ErrPermission},
	}
	c := connectedClient(t, fs, Config{BaseDir: "/docs", Extensions: []string{".pdf"}})

	entries := c.Walk("/docs")
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want the 2 siblings of the denied subtree", len(entries))
	}
}

func TestWalkRootPermissionDenied(t *testing.T) {
	fs := &fakeFS{
		dirs:    map[string][]os.FileInfo{"/docs": {}},
		readErr: map[string]error{"/docs": os.ErrPermission},
	}
	c := connectedClient(t, fs, Config{BaseDir: "/docs"})

	if entries := c.Walk("/docs"); len(entries) != 0 {
		t.Errorf("got %d entries, want none", len(entries))
	}
}

func TestWalkRootConnectionLost(t *testing.T) {
	fs := &fakeFS{
		dirs:    map[string][]os.FileInfo{"/docs": {}},
		readErr: map[string]error{"/docs": sftp.ErrSSHFxConnectionLost},
	}
	c := connectedClient(t, fs, Config{BaseDir: "/docs"})

	// Returns empty instead of failing; the session gets one repair try.
	if entries := c.Walk("/docs"); len(entries) != 0 {
		t.Errorf("got %d entries, want none", len(entries))
	}
}

func TestWalkDeadSessionYieldsEmpty(t *testing.T) {
	c := deadClient()
	if entries := c.Walk("/docs"); entries != nil {
		t.Errorf("Walk() = %v, want nil without a session", entries)
	}
}

// droppingFS kills the session on one listing: the failing ReadDir
// also fails the next liveness check, as a dropped connection would.
type droppingFS struct {
	*fakeFS
	failPath string
}

func (d *droppingFS) ReadDir(p string) ([]os.FileInfo, error) {
	if p == d.failPath {
		d.getwdErr = sftp.ErrSSHFxConnectionLost
		return nil, sftp.ErrSSHFxConnectionLost
	}
	return d.fakeFS.ReadDir(p)
}

func TestWalkRepairsSessionMidWalk(t *testing.T) {
	mod := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)
	dead := &droppingFS{
		fakeFS: &fakeFS{dirs: map[string][]os.FileInfo{
			"/docs": {
				fakeInfo{name: "a", dir: true},
				fakeInfo{name: "b", dir: true},
			},
		}},
		failPath: "/docs/a",
	}
	fresh := &fakeFS{dirs: map[string][]os.FileInfo{
		"/docs":   {},
		"/docs/b": {fakeInfo{name: "010001000005909.pdf", mod: mod}},
	}}

	dials := 0
	c := &Client{cfg: Config{BaseDir: "/docs", Extensions: []string{".pdf"}}, dial: func(Config) (remoteFS, io.Closer, error) {
		dials++
		if dials == 1 {
			return dead, nopCloser{}, nil
		}
		return fresh, nopCloser{}, nil
	}}
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	entries := c.Walk("/docs")
	if len(entries) != 1 || entries[0].Path != "/docs/b/010001000005909.pdf" {
		t.Fatalf("entries = %+v, want the sibling collected on the rebuilt session", entries)
	}
	if dials != 2 {
		t.Errorf("dials = %d, want 2 (exactly one mid-walk repair)", dials)
	}
	if !c.IsAlive() {
		t.Error("session should be live after the repair")
	}
	if !dead.closed {
		t.Error("the dropped session's handle should be closed by the repair")
	}
}

// When the repair itself fails, the remaining subtrees are skipped
// without redialing per directory.
func TestWalkSessionLossWithoutRecovery(t *testing.T) {
	dead := &droppingFS{
		fakeFS: &fakeFS{dirs: map[string][]os.FileInfo{
			"/docs": {
				fakeInfo{name: "a", dir: true},
				fakeInfo{name: "b", dir: true},
				fakeInfo{name: "c", dir: true},
			},
		}},
		failPath: "/docs/a",
	}

	dials := 0
	c := &Client{cfg: Config{BaseDir: "/docs"}, dial: func(Config) (remoteFS, io.Closer, error) {
		dials++
		if dials == 1 {
			return dead, nopCloser{}, nil
		}
		return nil, nil, sftp.ErrSSHFxConnectionLost
	}}
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	if entries := c.Walk("/docs"); len(entries) != 0 {
		t.Errorf("entries = %+v, want none after the session is lost", entries)
	}
	if dials != 2 {
		t.Errorf("dials = %d, want 2 (one failed repair, no per-directory retries)", dials)
	}
}

func TestWalkTopIgnoresSubdirectories(t *testing.T) {
	fs := &fakeFS{dirs: map[string][]os.FileInfo{
		"/docs": {
			fakeInfo{name: "top.pdf"},
			fakeInfo{name: "sub", dir: true},
		},
		"/docs/sub": {fakeInfo{name: "nested.pdf"}},
	}}
	c := connectedClient(t, fs, Config{BaseDir: "/docs", Extensions: []string{".pdf"}})

	entries := c.WalkTop("/docs")
	if len(entries) != 1 || entries[0].Name != "top.pdf" {
		t.Errorf("WalkTop() = %+v, want only top.pdf", entries)
	}
}

func TestAllowedExt(t *testing.T) {
	tests := []struct {
		name string
		file string
		exts []string
		want bool
	}{
		{"match lower", "a.pdf", []string{".pdf", ".PDF"}, true},
		{"match upper", "a.PDF", []string{".pdf", ".PDF"}, true},
		{"case sensitive", "a.PDF", []string{".pdf"}, false},
		{"no match", "a.txt", []string{".pdf"}, false},
		{"empty list allows all", "a.txt", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := allowedExt(tt.file, tt.exts); got != tt.want {
				t.Errorf("allowedExt(%q, %v) = %v, want %v", tt.file, tt.exts, got, tt.want)
			}
		})
	}
}

func TestJoinRemote(t *testing.T) {
	tests := []struct {
		dir, name, want string
	}{
		{"/docs", "a.pdf", "/docs/a.pdf"},
		{"/docs/", "a.pdf", "/docs/a.pdf"},
		{"/", "a.pdf", "/a.pdf"},
	}
	for _, tt := range tests {
		if got := joinRemote(tt.dir, tt.name); got != tt.want {
			t.Errorf("joinRemote(%q, %q) = %q, want %q", tt.dir, tt.name, got, tt.want)
		}
	}
}

package remote

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path"
	"testing"
	"time"

	"github.com/MarceloCBif/BuscaBoleto/internal/errs"
)

type fakeInfo struct {
	name string
	dir  bool
	size int64
	mod  time.Time
}

func (f fakeInfo) Name() string { return f.name }
func (f fakeInfo) Size() int64  { return f.size }
func (f fakeInfo) Mode() os.FileMode {
	if f.dir {
		return os.ModeDir | 0755
	}
	return 0644
}
func (f fakeInfo) ModTime() time.Time { return f.mod }
func (f fakeInfo) IsDir() bool        { return f.dir }
func (f fakeInfo) Sys() any           { return nil }

type fakeFS struct {
	dirs     map[string][]os.FileInfo
	readErr  map[string]error
	files    map[string][]byte
	openErr  map[string]error
	getwdErr error
	closed   bool
}

func (f *fakeFS) ReadDir(p string) ([]os.FileInfo, error) {
	if err, ok := f.readErr[p]; ok {
		return nil, err
	}
	infos, ok := f.dirs[p]
	if !ok {
		return nil, os.ErrNotExist
	}
	return infos, nil
}

func (f *fakeFS) Open(p string) (io.ReadCloser, error) {
	if err, ok := f.openErr[p]; ok {
		return nil, err
	}
	data, ok := f.files[p]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeFS) Stat(p string) (os.FileInfo, error) {
	if _, ok := f.dirs[p]; ok {
		return fakeInfo{name: path.Base(p), dir: true}, nil
	}
	if data, ok := f.files[p]; ok {
		return fakeInfo{name: path.Base(p), size: int64(len(data))}, nil
	}
	return nil, os.ErrNotExist
}

func (f *fakeFS) Getwd() (string, error) {
	if f.getwdErr != nil {
		return "", f.getwdErr
	}
	return "/", nil
}

func (f *fakeFS) Close() error {
	f.closed = true
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// testClient wires a client to the fake, counting dials.
func testClient(fs *fakeFS, cfg Config) (*Client, *int) {
	dials := 0
	c := &Client{cfg: cfg, dial: func(Config) (remoteFS, io.Closer, error) {
		dials++
		return fs, nopCloser{}, nil
	}}
	return c, &dials
}

func deadClient() *Client {
	return &Client{cfg: Config{}, dial: func(Config) (remoteFS, io.Closer, error) {
		return nil, nil, errs.New(errs.Connection, "dial refused")
	}}
}

func TestConnect(t *testing.T) {
	fs := &fakeFS{dirs: map[string][]os.FileInfo{"/docs": {}}}
	c, dials := testClient(fs, Config{BaseDir: "/docs"})

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if !c.IsAlive() {
		t.Error("IsAlive() = false after connect")
	}
	if *dials != 1 {
		t.Errorf("dials = %d, want 1", *dials)
	}
}

func TestConnectBaseDirMissing(t *testing.T) {
	fs := &fakeFS{dirs: map[string][]os.FileInfo{}}
	c, _ := testClient(fs, Config{BaseDir: "/docs"})

	err := c.Connect()
	if err == nil {
		t.Fatal("Connect() should fail when the base dir is missing")
	}
	if got := errs.KindOf(err); got != errs.NotFound {
		t.Errorf("kind = %v, want NotFound", got)
	}
	if !fs.closed {
		t.Error("handles should be torn down on failure")
	}
	if c.IsAlive() {
		t.Error("session must stay empty after a failed connect")
	}
}

func TestConnectDialFailure(t *testing.T) {
	c := deadClient()
	err := c.Connect()
	if err == nil {
		t.Fatal("Connect() should surface the dial failure")
	}
	if got := errs.KindOf(err); got != errs.Connection {
		t.Errorf("kind = %v, want Connection", got)
	}
	if c.IsAlive() {
		t.Error("session must stay empty")
	}
}

func TestDisconnectTolerant(t *testing.T) {
	c := &Client{}
	c.Disconnect() // nothing to close

	fs := &fakeFS{dirs: map[string][]os.FileInfo{"/docs": {}}}
	c, _ = testClient(fs, Config{BaseDir: "/docs"})
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	c.Disconnect()
	c.Disconnect()
	if c.IsAlive() {
		t.Error("IsAlive() = true after disconnect")
	}
	if !fs.closed {
		t.Error("disconnect should close the transfer handle")
	}
}

func TestIsAliveProbeFailure(t *testing.T) {
	fs := &fakeFS{dirs: map[string][]os.FileInfo{"/docs": {}}}
	c, _ := testClient(fs, Config{BaseDir: "/docs"})
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	fs.getwdErr = errors.New("connection lost")
	if c.IsAlive() {
		t.Error("IsAlive() = true with a failing probe")
	}
}

func TestEnsureConnectedKeepsLiveSession(t *testing.T) {
	fs := &fakeFS{dirs: map[string][]os.FileInfo{"/docs": {}}}
	c, dials := testClient(fs, Config{BaseDir: "/docs"})
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	if !c.EnsureConnected() {
		t.Fatal("EnsureConnected() = false on a live session")
	}
	if !c.EnsureConnected() {
		t.Fatal("EnsureConnected() = false on second call")
	}
	if *dials != 1 {
		t.Errorf("dials = %d, want 1 (no reconnect on a live session)", *dials)
	}
}

func TestEnsureConnectedRebuildsDeadSession(t *testing.T) {
	fs := &fakeFS{dirs: map[string][]os.FileInfo{"/docs": {}}}
	c, dials := testClient(fs, Config{BaseDir: "/docs"})
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	fs.getwdErr = errors.New("connection lost")
	fsAlive := &fakeFS{dirs: map[string][]os.FileInfo{"/docs": {}}}
	c.dial = func(Config) (remoteFS, io.Closer, error) {
		*dials++
		return fsAlive, nopCloser{}, nil
	}

	if !c.EnsureConnected() {
		t.Fatal("EnsureConnected() = false after rebuild")
	}
	if *dials != 2 {
		t.Errorf("dials = %d, want 2 (exactly one rebuild)", *dials)
	}
	if !c.IsAlive() {
		t.Error("rebuilt session should be alive")
	}
}

func TestEnsureConnectedReportsFailure(t *testing.T) {
	c := deadClient()
	if c.EnsureConnected() {
		t.Error("EnsureConnected() = true although dialing fails")
	}
}

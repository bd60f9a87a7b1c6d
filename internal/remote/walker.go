package remote

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarceloCBif/BuscaBoleto/internal/errs"
	"github.com/MarceloCBif/BuscaBoleto/internal/logging"
	"github.com/MarceloCBif/BuscaBoleto/internal/metrics"
)

// Entry is one file found under a remote root.
type Entry struct {
	Path    string
	Name    string
	ModTime time.Time
}

// Walk lists every allowed file under root, descending into
// subdirectories. Subtrees that fail to list are skipped; a
// connection failure at any depth gets one repair attempt and the
// remaining directories continue on the rebuilt session. Whatever was
// collected is returned, never an error.
func (c *Client) Walk(root string) []Entry {
	return c.walkRoot(root, true)
}

// WalkTop lists only the files directly under root.
func (c *Client) WalkTop(root string) []Entry {
	return c.walkRoot(root, false)
}

func (c *Client) walkRoot(root string, recurse bool) []Entry {
	if !c.EnsureConnected() {
		return nil
	}

	start := time.Now()
	w := &walker{client: c, exts: c.cfg.Extensions}
	err := w.walk(root, recurse)
	metrics.RecordWalk(time.Since(start), len(w.entries), w.skipped)

	if err != nil {
		logging.Warn("walk interrupted",
			zap.String("root", root),
			zap.Int("collected", len(w.entries)),
			zap.Error(err),
		)
	} else if w.skipped > 0 {
		logging.Debug("walk skipped subtrees",
			zap.String("root", root),
			zap.Int("skipped", w.skipped),
		)
	}
	return w.entries
}

type walker struct {
	client  *Client
	exts    []string
	entries []Entry
	skipped int
}

// walk re-reads the session handle per directory: after a mid-walk
// repair the remaining directories list on the rebuilt session. A
// dropped connection costs the subtree that hit it, nothing more.
func (w *walker) walk(dir string, recurse bool) error {
	fs := w.client.fs
	if fs == nil {
		return errs.New(errs.Connection, "session down, skipping "+dir)
	}
	infos, err := fs.ReadDir(dir)
	if err != nil {
		err = classify("list "+dir, err)
		if errs.Is(err, errs.Connection) {
			w.client.EnsureConnected()
		}
		return err
	}
	for _, info := range infos {
		full := joinRemote(dir, info.Name())
		if info.IsDir() {
			if !recurse {
				continue
			}
			if err := w.walk(full, true); err != nil {
				w.skipped++
			}
			continue
		}
		if !allowedExt(info.Name(), w.exts) {
			continue
		}
		w.entries = append(w.entries, Entry{Path: full, Name: info.Name(), ModTime: info.ModTime()})
	}
	return nil
}

func joinRemote(dir, name string) string {
	return strings.ReplaceAll(dir+"/"+name, "//", "/")
}

func allowedExt(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	for _, ext := range exts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

package remote

import (
	"io"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/MarceloCBif/BuscaBoleto/internal/errs"
	"github.com/MarceloCBif/BuscaBoleto/internal/logging"
	"github.com/MarceloCBif/BuscaBoleto/internal/metrics"
)

// Download copies one remote file into the download directory and
// returns the local path. The local name defaults to the remote base
// name. The write goes through a temp file so a failed transfer never
// leaves a partial document behind.
func (c *Client) Download(remotePath, localName string) (string, error) {
	if !c.EnsureConnected() {
		return "", errs.New(errs.Connection, "no remote session")
	}
	if localName == "" {
		localName = path.Base(remotePath)
	}
	if err := os.MkdirAll(c.cfg.DownloadDir, 0755); err != nil {
		return "", errs.Wrap(errs.Config, "create download dir "+c.cfg.DownloadDir, err)
	}

	dest := filepath.Join(c.cfg.DownloadDir, localName)
	n, err := c.fetch(remotePath, dest)
	metrics.RecordDownload(n, err == nil)
	if err != nil {
		return "", err
	}

	logging.Info("downloaded",
		zap.String("remote", remotePath),
		zap.String("local", dest),
		zap.Int64("bytes", n),
	)
	return dest, nil
}

// FetchTemp copies a remote file into a fresh temp file and returns
// its path. The caller removes the file when done with it.
func (c *Client) FetchTemp(remotePath string) (string, error) {
	if !c.EnsureConnected() {
		return "", errs.New(errs.Connection, "no remote session")
	}

	src, err := c.fs.Open(remotePath)
	if err != nil {
		return "", classify("open "+remotePath, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "buscaboleto-*"+path.Ext(remotePath))
	if err != nil {
		return "", errs.Wrap(errs.Unknown, "create temp file", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", classify("read "+remotePath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", errs.Wrap(errs.Unknown, "close temp file", err)
	}
	return tmp.Name(), nil
}

func (c *Client) fetch(remotePath, dest string) (int64, error) {
	src, err := c.fs.Open(remotePath)
	if err != nil {
		return 0, classify("open "+remotePath, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".buscaboleto-*.tmp")
	if err != nil {
		return 0, errs.Wrap(errs.Unknown, "create temp for "+dest, err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, classify("read "+remotePath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, errs.Wrap(errs.Unknown, "close temp for "+dest, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return 0, errs.Wrap(errs.Unknown, "rename temp to "+dest, err)
	}
	return n, nil
}

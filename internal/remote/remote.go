// Package remote maintains the SFTP session and the remote directory
// operations of the retrieval engine. Every public operation checks
// the session first; a connection drop during a walk is repaired in
// place, and a broken subtree never fails a whole walk.
package remote

import (
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/MarceloCBif/BuscaBoleto/internal/logging"
	"github.com/MarceloCBif/BuscaBoleto/internal/metrics"
)

// Config holds remote session settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	KeyPath  string // used instead of the password when set and readable

	BaseDir string // validated on connect
	Timeout time.Duration

	DownloadDir string
	Extensions  []string // allowed file name suffixes, empty allows all
}

// Client is one SSH plus SFTP session pair. Either both handles are
// live or neither is. It is not safe for concurrent use; operations
// run one at a time.
type Client struct {
	cfg  Config
	dial func(Config) (remoteFS, io.Closer, error)

	fs   remoteFS
	conn io.Closer
}

// New builds a client. The session stays down until Connect.
func New(cfg Config) *Client {
	return &Client{cfg: cfg, dial: sshDial}
}

// Connect establishes the session and validates the document root.
// Any partially established state is torn down on failure.
func (c *Client) Connect() error {
	c.Disconnect()

	fs, conn, err := c.dial(c.cfg)
	if err != nil {
		metrics.RecordConnectAttempt(false)
		return err
	}

	if c.cfg.BaseDir != "" {
		if _, statErr := fs.Stat(c.cfg.BaseDir); statErr != nil {
			fs.Close()
			conn.Close()
			metrics.RecordConnectAttempt(false)
			return classify("stat "+c.cfg.BaseDir, statErr)
		}
	}

	c.fs, c.conn = fs, conn
	metrics.RecordConnectAttempt(true)
	logging.Info("sftp connected",
		zap.String("host", c.cfg.Host),
		zap.Int("port", c.cfg.Port),
		zap.String("base_dir", c.cfg.BaseDir),
	)
	return nil
}

// Disconnect closes both handles, tolerating errors and absent state.
func (c *Client) Disconnect() {
	if c.fs != nil {
		_ = c.fs.Close()
		c.fs = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// IsAlive probes the session with a working-directory request.
func (c *Client) IsAlive() bool {
	if c.fs == nil {
		return false
	}
	_, err := c.fs.Getwd()
	return err == nil
}

// EnsureConnected verifies the session and rebuilds it at most once.
func (c *Client) EnsureConnected() bool {
	if c.IsAlive() {
		return true
	}
	metrics.RecordReconnect()
	c.Disconnect()
	if err := c.Connect(); err != nil {
		logging.Warn("reconnect failed", zap.Error(err))
		return false
	}
	return true
}

package remote

import (
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/MarceloCBif/BuscaBoleto/internal/errs"
)

// remoteFS is the file-transfer surface the engine consumes. The live
// implementation wraps an SFTP client; tests substitute fakes.
type remoteFS interface {
	ReadDir(path string) ([]os.FileInfo, error)
	Open(path string) (io.ReadCloser, error)
	Stat(path string) (os.FileInfo, error)
	Getwd() (string, error)
	Close() error
}

type sftpFS struct {
	c *sftp.Client
}

func (s sftpFS) ReadDir(path string) ([]os.FileInfo, error) { return s.c.ReadDir(path) }
func (s sftpFS) Open(path string) (io.ReadCloser, error)    { return s.c.Open(path) }
func (s sftpFS) Stat(path string) (os.FileInfo, error)      { return s.c.Stat(path) }
func (s sftpFS) Getwd() (string, error)                     { return s.c.Getwd() }
func (s sftpFS) Close() error                               { return s.c.Close() }

func sshDial(cfg Config) (remoteFS, io.Closer, error) {
	auth, err := authMethods(cfg)
	if err != nil {
		return nil, nil, err
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	conn, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.Timeout,
	})
	if err != nil {
		if isAuthFailure(err) {
			return nil, nil, errs.Wrap(errs.Auth, "login refused by "+addr, err)
		}
		return nil, nil, errs.Wrap(errs.Connection, "dial "+addr, err)
	}

	sc, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, nil, errs.Wrap(errs.Connection, "open sftp subsystem", err)
	}
	return sftpFS{sc}, conn, nil
}

// authMethods picks private-key auth when a key path is configured and
// the file exists, password auth otherwise.
func authMethods(cfg Config) ([]ssh.AuthMethod, error) {
	if cfg.KeyPath != "" {
		if _, err := os.Stat(cfg.KeyPath); err == nil {
			data, err := os.ReadFile(cfg.KeyPath)
			if err != nil {
				return nil, errs.Wrap(errs.Config, "read private key "+cfg.KeyPath, err)
			}
			signer, err := ssh.ParsePrivateKey(data)
			if err != nil {
				return nil, errs.Wrap(errs.Config, "parse private key "+cfg.KeyPath, err)
			}
			return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
		}
	}
	return []ssh.AuthMethod{ssh.Password(cfg.Password)}, nil
}

// The ssh package reports rejected credentials only through the
// handshake error text, so the check lives here and nowhere else.
func isAuthFailure(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain")
}

// classify maps a transport error onto the engine's error kinds. This
// is the only layer that inspects causes; callers branch on the kind.
func classify(msg string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist):
		return errs.Wrap(errs.NotFound, msg, err)
	case errors.Is(err, os.ErrPermission):
		return errs.Wrap(errs.Permission, msg, err)
	case errors.Is(err, sftp.ErrSSHFxConnectionLost),
		errors.Is(err, sftp.ErrSSHFxNoConnection),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return errs.Wrap(errs.Connection, msg, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return errs.Wrap(errs.Connection, msg, err)
	}
	return errs.Wrap(errs.Unknown, msg, err)
}

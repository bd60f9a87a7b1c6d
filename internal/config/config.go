// Package config loads engine configuration from an optional env file
// plus environment variables, environment values taking priority.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all retrieval engine configuration.
type Config struct {
	// SFTP server
	SFTPHost     string
	SFTPPort     int
	SFTPUser     string
	SFTPPassword string
	SFTPKeyPath  string
	BoletoDir    string
	NFDir        string

	// Local filesystem
	DownloadDir string

	// Search
	AllowedExtensions []string
	Timeout           time.Duration

	// Network gate (empty disables the check)
	AllowedIPPrefixes []string

	// Tax document service
	NFSeEndpointDPS  string
	NFSeEndpointKey  string
	NFSeEndpointPDF  string
	NFSeIDPrefix     string
	NFSeCertPath     string
	NFSeCertPassword string

	// Observability
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// Load reads configuration with defaults. Values come from the process
// environment, falling back to the env file named by BUSCABOLETO_ENV,
// or a .env beside the executable, or a .env in the working directory.
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		SFTPHost:     envOr("SFTP_HOST", ""),
		SFTPPort:     envInt("SFTP_PORT", 22),
		SFTPUser:     envOr("SFTP_USER", ""),
		SFTPPassword: envOr("SFTP_PASSWORD", ""),
		SFTPKeyPath:  envOr("SFTP_KEY_PATH", ""),
		BoletoDir:    envOr("SFTP_BOLETO_DIR", ""),
		NFDir:        envOr("SFTP_NF_DIR", ""),

		DownloadDir: envOr("DOWNLOAD_PATH", "downloads"),

		AllowedExtensions: envList("ALLOWED_EXTENSIONS", ".pdf,.PDF"),
		Timeout:           envDuration("SEARCH_TIMEOUT", 30*time.Second),

		AllowedIPPrefixes: envList("ALLOWED_IP_PREFIXES", ""),

		NFSeEndpointDPS:  envOr("NFSE_ENDPOINT_DPS", ""),
		NFSeEndpointKey:  envOr("NFSE_ENDPOINT_KEY", ""),
		NFSeEndpointPDF:  envOr("NFSE_ENDPOINT_PDF", ""),
		NFSeIDPrefix:     envOr("NFSE_ID_PREFIX", ""),
		NFSeCertPath:     envOr("NFSE_CERT_PATH", ""),
		NFSeCertPassword: envOr("NFSE_CERT_PASSWORD", ""),

		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "console"),
		MetricsAddr: envOr("METRICS_ADDR", ""),
	}

	if cfg.SFTPPort <= 0 || cfg.SFTPPort > 65535 {
		return nil, fmt.Errorf("SFTP_PORT %d out of range", cfg.SFTPPort)
	}

	return cfg, nil
}

// ValidateSFTP checks the fields the remote session needs.
func (c *Config) ValidateSFTP() error {
	if c.SFTPHost == "" {
		return fmt.Errorf("SFTP_HOST is required")
	}
	if c.SFTPUser == "" {
		return fmt.Errorf("SFTP_USER is required")
	}
	if c.BoletoDir == "" {
		return fmt.Errorf("SFTP_BOLETO_DIR is required")
	}
	return nil
}

// ValidateNFSe checks the fields the tax document client needs.
func (c *Config) ValidateNFSe() error {
	if c.NFSeEndpointDPS == "" {
		return fmt.Errorf("NFSE_ENDPOINT_DPS is required")
	}
	if c.NFSeEndpointKey == "" {
		return fmt.Errorf("NFSE_ENDPOINT_KEY is required")
	}
	if c.NFSeCertPath == "" {
		return fmt.Errorf("NFSE_CERT_PATH is required")
	}
	return nil
}

func loadEnvFile() {
	if path := os.Getenv("BUSCABOLETO_ENV"); path != "" {
		_ = godotenv.Load(path)
		return
	}
	if exe, err := os.Executable(); err == nil {
		beside := filepath.Join(filepath.Dir(exe), ".env")
		if _, statErr := os.Stat(beside); statErr == nil {
			_ = godotenv.Load(beside)
			return
		}
	}
	_ = godotenv.Load()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

// envDuration accepts a bare integer (seconds) or a Go duration string.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key, fallback string) []string {
	v := os.Getenv(key)
	if v == "" {
		v = fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Package config reads the process environment once at start-up. Nothing
// below cmd/ reads the environment directly; components receive the values
// they need from Config.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultWorkspacePrefix names the job kind in workspace directory names.
const DefaultWorkspacePrefix = "thumbnails"

type Config struct {
	ServiceName string
	HTTPPort    string

	LogLevel  string
	LogFormat string
	LogSource bool

	// ToolPath is the resolved extraction tool binary.
	ToolPath string

	// InstallRoot is where a bundled tool is looked for (<root>/ffmpeg/ffmpeg).
	InstallRoot string

	// TempRoot holds the per-job workspaces.
	TempRoot        string
	WorkspacePrefix string

	// ToolTimeout bounds a single tool run. Zero disables the bound.
	ToolTimeout time.Duration

	// CredentialTTL is the lifetime of minted signatures and delegation keys.
	CredentialTTL time.Duration

	CORSAllowedOrigins []string

	// Async mode. Both must be set to enable /jobs and the worker.
	DatabaseURL       string
	RedisAddr         string
	QueueName         string
	WorkerConcurrency int

	Storage StorageConfig
}

// StorageConfig selects which storage adapters are registered.
type StorageConfig struct {
	AzureEnabled bool
	S3Enabled    bool

	GDriveClientID     string
	GDriveClientSecret string
	GDriveRefreshToken string

	// GDriveFolderID is used when a gdrive location names no folder.
	GDriveFolderID string
}

// GDriveEnabled reports whether the Drive adapter has credentials.
func (s StorageConfig) GDriveEnabled() bool {
	return s.GDriveClientID != "" && s.GDriveClientSecret != "" && s.GDriveRefreshToken != ""
}

// AsyncEnabled reports whether the queue-backed job mode is configured.
func (c Config) AsyncEnabled() bool {
	return c.DatabaseURL != "" && c.RedisAddr != ""
}

// Load builds a Config from the environment.
func Load(serviceName string) (Config, error) {
	toolTimeout, err := DurationEnv("TOOL_TIMEOUT", 15*time.Minute)
	if err != nil {
		return Config{}, err
	}
	ttl, err := DurationEnv("CREDENTIAL_TTL", time.Hour)
	if err != nil {
		return Config{}, err
	}
	if ttl <= 0 {
		return Config{}, fmt.Errorf("CREDENTIAL_TTL must be positive")
	}

	root := Env("THUMBNAILER_ROOT", ".")

	cfg := Config{
		ServiceName: serviceName,
		HTTPPort:    Env("HTTP_PORT", "8080"),

		LogLevel:  Env("LOG_LEVEL", "info"),
		LogFormat: Env("LOG_FORMAT", "json"),
		LogSource: BoolEnv("LOG_SOURCE", false),

		InstallRoot:     root,
		ToolPath:        ResolveToolPath(Env("FFMPEG_PATH", ""), root),
		TempRoot:        Env("TEMP_ROOT", os.TempDir()),
		WorkspacePrefix: Env("WORKSPACE_PREFIX", DefaultWorkspacePrefix),
		ToolTimeout:     toolTimeout,
		CredentialTTL:   ttl,

		CORSAllowedOrigins: CSVEnv("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:8081",
			"http://localhost:5173",
		}),

		DatabaseURL:       Env("DATABASE_URL", ""),
		RedisAddr:         Env("REDIS_ADDR", ""),
		QueueName:         Env("JOB_QUEUE_NAME", "thumbnailer:jobs"),
		WorkerConcurrency: IntEnv("WORKER_CONCURRENCY", 2),

		Storage: StorageConfig{
			AzureEnabled:       BoolEnv("AZURE_STORAGE_ENABLED", true),
			S3Enabled:          BoolEnv("AWS_S3_ENABLED", false),
			GDriveClientID:     Env("GDRIVE_CLIENT_ID", ""),
			GDriveClientSecret: Env("GDRIVE_CLIENT_SECRET", ""),
			GDriveRefreshToken: Env("GDRIVE_REFRESH_TOKEN", ""),
			GDriveFolderID:     Env("GDRIVE_FOLDER_ID", ""),
		},
	}

	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}

	return cfg, nil
}

// ResolveToolPath picks the extraction binary: an explicit path wins, then a
// bundled copy under the install root, then a PATH lookup. When nothing is
// found the bare name is returned and the launch fails per job.
func ResolveToolPath(explicit, installRoot string) string {
	if explicit != "" {
		return explicit
	}

	if installRoot != "" {
		bundled := filepath.Join(installRoot, "ffmpeg", "ffmpeg")
		if st, err := os.Stat(bundled); err == nil && !st.IsDir() {
			return bundled
		}
	}

	if p, err := exec.LookPath("ffmpeg"); err == nil {
		return p
	}
	return "ffmpeg"
}

// Env gets an environment variable with a default value.
func Env(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

// BoolEnv reads an env var as bool. If empty or invalid, returns def.
func BoolEnv(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// IntEnv reads an env var as int. If empty or invalid, returns def.
func IntEnv(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// DurationEnv reads an env var as a time.Duration ("90s", "15m").
// A bare "0" disables the value.
func DurationEnv(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	if v == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return d, nil
}

// CSVEnv reads a comma separated list, dropping empty items.
func CSVEnv(k string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(k))
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

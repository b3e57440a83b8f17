package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings. It is built once at startup with
// FromEnv and passed explicitly into constructors; nothing reads the
// environment after that.
type Config struct {
	Port     string
	CacheDir string

	// External tool binaries.
	FetchTool     string
	ProbeTool     string
	TranscodeTool string

	// Extra arguments appended to every fetch tool invocation
	// (e.g. proxy or cookie flags).
	FetchExtraArgs []string

	FetchTimeout   time.Duration
	ProbeTimeout   time.Duration
	ConvertTimeout time.Duration

	// Pattern for Twitter filenames; {userId} and {tweetId} are substituted.
	NamingPattern string

	// Status stream tuning.
	KeepAliveInterval time.Duration
	MaxKeepAlives     int
	CleanupGrace      time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// FromEnv builds a Config from environment variables, applying defaults
// for anything unset.
func FromEnv() Config {
	return Config{
		Port:              GetEnv("PORT", "10001"),
		CacheDir:          GetEnv("CACHE_DIR", "cache"),
		FetchTool:         GetEnv("FETCH_TOOL", "yt-dlp"),
		ProbeTool:         GetEnv("PROBE_TOOL", "ffprobe"),
		TranscodeTool:     GetEnv("TRANSCODE_TOOL", "ffmpeg"),
		FetchExtraArgs:    splitArgs(GetEnv("FETCH_EXTRA_ARGS", "")),
		FetchTimeout:      GetEnvDuration("FETCH_TIMEOUT", 10*time.Minute),
		ProbeTimeout:      GetEnvDuration("PROBE_TIMEOUT", 30*time.Second),
		ConvertTimeout:    GetEnvDuration("CONVERT_TIMEOUT", 10*time.Minute),
		NamingPattern:     GetEnv("VIDEO_NAMING_PATTERN", "{userId}@twitter-{tweetId}"),
		KeepAliveInterval: GetEnvDuration("STATUS_KEEPALIVE_INTERVAL", time.Second),
		MaxKeepAlives:     GetEnvInt("STATUS_MAX_KEEPALIVES", 300),
		CleanupGrace:      GetEnvDuration("SESSION_CLEANUP_GRACE", 2*time.Second),
		LogLevel:          GetEnv("LOG_LEVEL", "info"),
		LogFormat:         GetEnv("LOG_FORMAT", "json"),
	}
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration returns the duration value of the environment variable named
// by key (Go duration syntax, e.g. "90s"), or fallback if unset or invalid.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}

// splitArgs splits a whitespace-separated argument string. Quoting is not
// supported; values with spaces should be passed as separate tokens.
func splitArgs(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

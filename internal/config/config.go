// Package config reads the settings of the framesync binaries from the
// environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Transport selects the bus implementation.
type Transport string

const (
	TransportLocal Transport = "local"
	TransportNATS  Transport = "nats"
)

// Debug names the broker debug sink.
type Debug string

const (
	DebugNone     Debug = "none"
	DebugLog      Debug = "log"
	DebugFunction Debug = "function"
	DebugElement  Debug = "element"
)

const (
	EnvTransport     = "FRAMESYNC_TRANSPORT"
	EnvNATSURL       = "NATS_URL"
	EnvFrames        = "FRAMESYNC_FRAMES"
	EnvDebug         = "FRAMESYNC_DEBUG"
	EnvLogLevel      = "FRAMESYNC_LOG_LEVEL"
	EnvSubjectPrefix = "FRAMESYNC_SUBJECT_PREFIX"
)

const (
	DefaultFrames        = "left,right"
	DefaultLogLevel      = "info"
	DefaultSubjectPrefix = "framesync.window"
)

type Config struct {
	Transport     Transport
	NATSURL       string
	SubjectPrefix string
	Frames        []string
	Debug         Debug
	LogLevel      string
}

// Load reads the given dotenv files, ".env" when none are named, and then the
// environment. Missing files are ignored and variables that are already set
// win over the files.
func Load(filenames ...string) (Config, error) {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment.
func FromEnv() (Config, error) {
	cfg := Config{
		Transport:     Transport(strings.ToLower(envStrOrDefault(EnvTransport, string(TransportLocal)))),
		NATSURL:       os.Getenv(EnvNATSURL),
		SubjectPrefix: envStrOrDefault(EnvSubjectPrefix, DefaultSubjectPrefix),
		Frames:        splitList(envStrOrDefault(EnvFrames, DefaultFrames)),
		Debug:         Debug(strings.ToLower(envStrOrDefault(EnvDebug, string(DebugLog)))),
		LogLevel:      envStrOrDefault(EnvLogLevel, DefaultLogLevel),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Transport {
	case TransportLocal, TransportNATS:
	default:
		return fmt.Errorf("%s: unknown transport %q", EnvTransport, c.Transport)
	}
	switch c.Debug {
	case DebugNone, DebugLog, DebugFunction, DebugElement:
	default:
		return fmt.Errorf("%s: unknown debug mode %q", EnvDebug, c.Debug)
	}
	if len(c.Frames) == 0 {
		return fmt.Errorf("%s: at least one frame is required", EnvFrames)
	}
	seen := make(map[string]struct{}, len(c.Frames))
	for _, f := range c.Frames {
		if _, ok := seen[f]; ok {
			return fmt.Errorf("%s: duplicate frame %q", EnvFrames, f)
		}
		seen[f] = struct{}{}
	}
	return nil
}

func envStrOrDefault(key string, def string) string {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	return s
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

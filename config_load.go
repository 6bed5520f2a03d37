package goFactor

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by LoadConfig. Secrets are only ever read from
// the environment, never from the YAML file.
const (
	EnvJWTPrivateKey     = "GOFACTOR_JWT_PRIVATE_KEY"
	EnvJWTPublicKey      = "GOFACTOR_JWT_PUBLIC_KEY"
	EnvDuoApplicationKey = "GOFACTOR_DUO_APPLICATION_KEY"
	EnvYubicoClientID    = "GOFACTOR_YUBICO_CLIENT_ID"
	EnvYubicoKey         = "GOFACTOR_YUBICO_KEY"
	EnvRedisAddr         = "GOFACTOR_REDIS_ADDR"
	EnvRedisPassword     = "GOFACTOR_REDIS_PASSWORD"
	EnvFailureDelay      = "GOFACTOR_FAILURE_DELAY"
	EnvLogLevel          = "GOFACTOR_LOG_LEVEL"
	EnvLogEnv            = "GOFACTOR_ENV"
)

// LoadConfig builds a Config from defaults, then the YAML file at path (when
// path is non-empty), then the environment. A .env file in the working
// directory is loaded first when present; variables already set win.
func LoadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvJWTPrivateKey); ok && v != "" {
		key, err := decodeKey(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvJWTPrivateKey, err)
		}
		cfg.JWT.PrivateKey = key
	}
	if v, ok := lookup(EnvJWTPublicKey); ok && v != "" {
		key, err := decodeKey(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvJWTPublicKey, err)
		}
		cfg.JWT.PublicKey = key
	}
	if v, ok := lookup(EnvDuoApplicationKey); ok {
		cfg.Duo.ApplicationKey = v
	}
	if v, ok := lookup(EnvYubicoClientID); ok {
		cfg.Yubico.ClientID = v
	}
	if v, ok := lookup(EnvYubicoKey); ok {
		cfg.Yubico.Key = v
	}
	if v, ok := lookup(EnvRedisAddr); ok && v != "" {
		cfg.Redis.Addr = v
	}
	if v, ok := lookup(EnvRedisPassword); ok {
		cfg.Redis.Password = v
	}
	if v, ok := lookup(EnvFailureDelay); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvFailureDelay, err)
		}
		cfg.SignIn.FailureDelay = d
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Logging.Level = v
	}
	if v, ok := lookup(EnvLogEnv); ok && v != "" {
		cfg.Logging.Env = v
	}
	return nil
}

// decodeKey accepts PEM text or standard base64 of raw key bytes.
func decodeKey(v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "-----BEGIN") {
		return []byte(strings.ReplaceAll(v, `\n`, "\n")), nil
	}
	return base64.StdEncoding.DecodeString(v)
}

// parseDuration accepts Go durations and bare milliseconds.
func parseDuration(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

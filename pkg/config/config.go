// Package config loads momosync configuration from an optional JSON file and
// the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultClientSecretFile is the default path to the Google OAuth credentials JSON file.
const DefaultClientSecretFile = "data/client_secret.json"

// DefaultFile is the config file read when present.
const DefaultFile = "momosync.json"

const envPrefix = "MOMOSYNC_"

// Keys holding plugin configuration. In the JSON file they may be objects;
// in the environment they are JSON strings.
const (
	readerConfigKey = "MOMOSYNC_READER_CONFIG"
	writerConfigKey = "MOMOSYNC_WRITER_CONFIG"
)

// Config holds the application configuration.
type Config struct {
	// ReaderPlugin is the name of the reader plugin to use.
	// Environment variable: MOMOSYNC_READER
	ReaderPlugin string `koanf:"MOMOSYNC_READER"`

	// WriterPlugin is the name of the writer plugin to use.
	// Environment variable: MOMOSYNC_WRITER
	WriterPlugin string `koanf:"MOMOSYNC_WRITER"`

	// ReaderConfig is the JSON configuration for the reader plugin.
	// Environment variable: MOMOSYNC_READER_CONFIG
	ReaderConfig json.RawMessage `koanf:"-"`

	// WriterConfig is the JSON configuration for the writer plugin.
	// Environment variable: MOMOSYNC_WRITER_CONFIG
	WriterConfig json.RawMessage `koanf:"-"`

	// Currency is the code amounts are written with in SMS bodies.
	// Environment variable: MOMOSYNC_CURRENCY
	Currency string `koanf:"MOMOSYNC_CURRENCY"`

	// CountryCode is the calling code used to normalize phone numbers.
	// Environment variable: MOMOSYNC_COUNTRY_CODE
	CountryCode string `koanf:"MOMOSYNC_COUNTRY_CODE"`

	// ClientSecretFile is the Google OAuth client secret used by the gmail
	// reader and sheets writer.
	// Environment variable: MOMOSYNC_CLIENT_SECRET
	ClientSecretFile string `koanf:"MOMOSYNC_CLIENT_SECRET"`
}

// Load reads path (if it exists) and then the MOMOSYNC_* environment, with the
// environment taking precedence. An empty path means DefaultFile.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	k := koanf.New(".")

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	} else if explicit || !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", nil), nil); err != nil {
		return Config{}, fmt.Errorf("loading config from environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	var err error
	if cfg.ReaderConfig, err = pluginConfig(k, readerConfigKey); err != nil {
		return Config{}, err
	}
	if cfg.WriterConfig, err = pluginConfig(k, writerConfigKey); err != nil {
		return Config{}, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Currency == "" {
		c.Currency = "UGX"
	}
	if c.CountryCode == "" {
		c.CountryCode = "256"
	}
	if c.ClientSecretFile == "" {
		c.ClientSecretFile = DefaultClientSecretFile
	}
}

// pluginConfig returns the JSON form of key, which may be a nested object
// (from the file) or a JSON string (from the environment).
func pluginConfig(k *koanf.Koanf, key string) (json.RawMessage, error) {
	val := k.Get(key)
	switch v := val.(type) {
	case nil:
		return nil, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, nil
		}
		if !json.Valid([]byte(v)) {
			return nil, fmt.Errorf("%s: invalid JSON", key)
		}
		return json.RawMessage(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%s: encoding: %w", key, err)
		}
		return data, nil
	}
}

// Package mbox provides a plugin wrapper for the mbox reader.
package mbox

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/momosync/momosync/pkg/api"
	mboxreader "github.com/momosync/momosync/pkg/reader/mbox"
)

// Plugin implements the ReaderPlugin interface for mbox files.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "mbox"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Replay mobile money SMS from an mbox export"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	return []string{}
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"filePath": map[string]any{
				"type":        "string",
				"description": "Path to the mbox file",
			},
		},
		"required": []string{"filePath"},
	}
}

// Config represents the mbox reader configuration.
type Config struct {
	FilePath string `json:"filePath"`
}

// NewReader creates a new mbox reader instance.
func (p *Plugin) NewReader(_ *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Reader, error) {
	var cfg Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling mbox config: %w", err)
	}
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("filePath is required")
	}

	return mboxreader.New(mboxreader.Config{FilePath: cfg.FilePath}, logger)
}

// Package webhook provides a plugin wrapper for the HTTP webhook reader.
package webhook

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/momosync/momosync/pkg/api"
	webhookreader "github.com/momosync/momosync/pkg/reader/webhook"
)

// Plugin implements the ReaderPlugin interface for the webhook endpoint.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "webhook"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Receive mobile money SMS pushed by a forwarding app over HTTP"
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
			"addr": map[string]any{
				"type":        "string",
				"description": "Listen address",
				"default":     webhookreader.DefaultAddr,
			},
			"token": map[string]any{
				"type":        "string",
				"description": "Bearer token required on " + webhookreader.SMSPath,
			},
		},
	}
}

// Config represents the webhook reader configuration.
type Config struct {
	Addr  string `json:"addr,omitempty"`
	Token string `json:"token,omitempty"`
}

// NewReader creates a new webhook reader instance.
func (p *Plugin) NewReader(_ *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Reader, error) {
	var cfg Config
	if len(configData) > 0 {
		if err := json.Unmarshal(configData, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshaling webhook config: %w", err)
		}
	}

	return webhookreader.New(webhookreader.Config{Addr: cfg.Addr, Token: cfg.Token}, logger), nil
}

// Package gmail provides a plugin wrapper for the Gmail reader.
package gmail

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/momosync/momosync/pkg/api"
	gmailreader "github.com/momosync/momosync/pkg/reader/gmail"
)

// Plugin implements the ReaderPlugin interface for Gmail.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "gmail"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Read mobile money SMS forwarded to a Gmail mailbox"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	return []string{
		gmailapi.GmailReadonlyScope,
		gmailapi.GmailModifyScope,
	}
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Gmail search query selecting forwarded SMS",
				"default":     gmailreader.DefaultQuery,
			},
			"interval": map[string]any{
				"type":        "integer",
				"description": "Interval in seconds between polls (default: 10)",
				"default":     10,
			},
		},
	}
}

// Config represents the Gmail reader configuration.
type Config struct {
	Query    string `json:"query,omitempty"`
	Interval int    `json:"interval,omitempty"` // in seconds
}

// NewReader creates a new Gmail reader instance.
func (p *Plugin) NewReader(httpClient *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Reader, error) {
	if httpClient == nil {
		return nil, errors.New("gmail reader requires an authenticated http client")
	}

	var cfg Config
	if len(configData) > 0 {
		if err := json.Unmarshal(configData, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshaling gmail config: %w", err)
		}
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("interval must not be negative")
	}

	return gmailreader.New(httpClient, gmailreader.Config{
		Query:    cfg.Query,
		Interval: time.Duration(cfg.Interval) * time.Second,
	}, logger)
}

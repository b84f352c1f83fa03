// Package dynamodb provides a plugin wrapper for the DynamoDB writer.
package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/momosync/momosync/pkg/api"
	ddbwriter "github.com/momosync/momosync/pkg/writer/dynamodb"
)

// Plugin implements the WriterPlugin interface for DynamoDB.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "dynamodb"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Store transactions in an AWS DynamoDB table keyed by message ID"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
// AWS credentials come from the default credential chain.
func (p *Plugin) RequiredScopes() []string {
	return nil
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tableName": map[string]any{
				"type":        "string",
				"description": "Table name; its partition key must be the string attribute MessageID",
			},
			"region": map[string]any{
				"type":        "string",
				"description": "AWS region (default: resolved by the AWS SDK)",
			},
			"endpoint": map[string]any{
				"type":        "string",
				"description": "Custom endpoint, e.g. http://localhost:8000 for DynamoDB Local",
			},
			"batchSize": map[string]any{
				"type":        "integer",
				"description": "Number of transactions to buffer before writing (default: 10)",
				"default":     10,
			},
			"flushInterval": map[string]any{
				"type":        "integer",
				"description": "Interval in seconds between automatic flushes (default: 30)",
				"default":     30,
			},
		},
		"required": []string{"tableName"},
	}
}

// Config represents the DynamoDB writer configuration.
type Config struct {
	TableName     string `json:"tableName"`
	Region        string `json:"region,omitempty"`
	Endpoint      string `json:"endpoint,omitempty"`
	BatchSize     int    `json:"batchSize,omitempty"`
	FlushInterval int    `json:"flushInterval,omitempty"` // in seconds
}

// NewWriter creates a new DynamoDB writer instance.
func (p *Plugin) NewWriter(_ *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling dynamodb config: %w", err)
	}
	if cfg.TableName == "" {
		return nil, fmt.Errorf("tableName is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return ddbwriter.New(ctx, ddbwriter.Config{
		TableName:     cfg.TableName,
		Region:        cfg.Region,
		Endpoint:      cfg.Endpoint,
		BatchSize:     cfg.BatchSize,
		FlushInterval: time.Duration(cfg.FlushInterval) * time.Second,
	}, logger)
}

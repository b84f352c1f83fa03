// Package plugins holds the registry that maps configured reader and writer
// names to their factories.
package plugins

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/momosync/momosync/pkg/api"
)

// Plugin is the part shared by readers and writers.
type Plugin interface {
	// Name is the value selected by MOMOSYNC_READER or MOMOSYNC_WRITER.
	Name() string
	Description() string
	// RequiredScopes lists Google OAuth scopes. Plugins that need none
	// return an empty slice and get a nil http.Client.
	RequiredScopes() []string
	// ConfigSchema is a JSON schema for the plugin's JSON configuration.
	ConfigSchema() map[string]any
}

// ReaderPlugin builds SMS readers.
type ReaderPlugin interface {
	Plugin
	NewReader(httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.Reader, error)
}

// WriterPlugin builds transaction writers.
type WriterPlugin interface {
	Plugin
	NewWriter(httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.Writer, error)
}

// Registry manages available reader and writer plugins. It is not safe for
// concurrent registration; build it once at startup.
type Registry struct {
	readers map[string]ReaderPlugin
	writers map[string]WriterPlugin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		readers: make(map[string]ReaderPlugin),
		writers: make(map[string]WriterPlugin),
	}
}

// RegisterReader adds a reader plugin. Names must be unique and non-empty.
func (r *Registry) RegisterReader(plugin ReaderPlugin) error {
	return register("reader", r.readers, plugin)
}

// RegisterWriter adds a writer plugin. Names must be unique and non-empty.
func (r *Registry) RegisterWriter(plugin WriterPlugin) error {
	return register("writer", r.writers, plugin)
}

// GetReader returns a reader plugin by name.
func (r *Registry) GetReader(name string) (ReaderPlugin, error) {
	return lookup("reader", r.readers, name)
}

// GetWriter returns a writer plugin by name.
func (r *Registry) GetWriter(name string) (WriterPlugin, error) {
	return lookup("writer", r.writers, name)
}

// ListReaders returns the reader plugins sorted by name.
func (r *Registry) ListReaders() []ReaderPlugin {
	return sorted(r.readers)
}

// ListWriters returns the writer plugins sorted by name.
func (r *Registry) ListWriters() []WriterPlugin {
	return sorted(r.writers)
}

// GetAllScopes returns the sorted union of OAuth scopes the named reader and
// writer need.
func (r *Registry) GetAllScopes(readerName, writerName string) ([]string, error) {
	reader, err := r.GetReader(readerName)
	if err != nil {
		return nil, err
	}
	writer, err := r.GetWriter(writerName)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	for _, scope := range slices.Concat(reader.RequiredScopes(), writer.RequiredScopes()) {
		set[scope] = struct{}{}
	}
	return slices.Sorted(maps.Keys(set)), nil
}

// CreateReader builds a reader from the named plugin.
func (r *Registry) CreateReader(name string, httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.Reader, error) {
	plugin, err := r.GetReader(name)
	if err != nil {
		return nil, err
	}
	reader, err := plugin.NewReader(httpClient, config, logger)
	if err != nil {
		return nil, fmt.Errorf("%s reader: %w", name, err)
	}
	return reader, nil
}

// CreateWriter builds a writer from the named plugin.
func (r *Registry) CreateWriter(name string, httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	plugin, err := r.GetWriter(name)
	if err != nil {
		return nil, err
	}
	writer, err := plugin.NewWriter(httpClient, config, logger)
	if err != nil {
		return nil, fmt.Errorf("%s writer: %w", name, err)
	}
	return writer, nil
}

func register[P Plugin](kind string, plugins map[string]P, plugin P) error {
	name := plugin.Name()
	if strings.TrimSpace(name) == "" {
		return errors.New(kind + " plugin has an empty name")
	}
	if _, exists := plugins[name]; exists {
		return fmt.Errorf("%s plugin %q already registered", kind, name)
	}
	plugins[name] = plugin
	return nil
}

func lookup[P Plugin](kind string, plugins map[string]P, name string) (P, error) {
	plugin, exists := plugins[name]
	if !exists {
		var zero P
		return zero, fmt.Errorf("%s plugin %q not found", kind, name)
	}
	return plugin, nil
}

func sorted[P Plugin](plugins map[string]P) []P {
	out := slices.Collect(maps.Values(plugins))
	slices.SortFunc(out, func(a, b P) int { return strings.Compare(a.Name(), b.Name()) })
	return out
}

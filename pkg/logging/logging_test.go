package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"Warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{" error ", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			if got := ParseLevel(tc.in); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want Config
	}{
		{"empty", nil, Config{Level: slog.LevelInfo}},
		{"json debug", map[string]string{"LOG_LEVEL": "debug", "LOG_FORMAT": "JSON"}, Config{Level: slog.LevelDebug, JSON: true}},
		{"source", map[string]string{"LOG_SOURCE": "1", "LOG_FORMAT": "text"}, Config{Level: slog.LevelInfo, AddSource: true}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ConfigFromEnv(func(k string) string { return tc.env[k] })
			if got.Level != tc.want.Level || got.JSON != tc.want.JSON || got.AddSource != tc.want.AddSource {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
			if got.Output == nil {
				t.Error("output not set")
			}
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, JSON: true, Output: &buf})

	logger.Debug("hidden")
	logger.Info("parsed sms", "network", "MTN")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written at info level: %s", out)
	}
	if !strings.Contains(out, `"network":"MTN"`) {
		t.Errorf("expected JSON attribute in output, got %s", out)
	}
}

func TestSetup_InstallsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	Setup(Config{Level: slog.LevelWarn, Output: &buf})

	slog.Info("dropped")
	slog.Warn("kept", "component", "ingest")

	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "component=ingest") {
		t.Errorf("got %q", out)
	}
}

package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/killallgit/opusify/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		wantErr        bool
		expectedOutput string
	}{
		{
			name:           "root command without args shows help",
			args:           []string{},
			wantErr:        false,
			expectedOutput: "opusify",
		},
		{
			name:           "root command with --help",
			args:           []string{"--help"},
			wantErr:        false,
			expectedOutput: "Available Commands:",
		},
		{
			name:           "root command with invalid flag",
			args:           []string{"--invalid-flag"},
			wantErr:        true,
			expectedOutput: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Create a new root command for testing
			cmd := NewRootCmd()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if (err != nil) != tt.wantErr {
				t.Errorf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}

			if tt.expectedOutput != "" && !strings.Contains(buf.String(), tt.expectedOutput) {
				t.Errorf("Expected output to contain %q, got %q", tt.expectedOutput, buf.String())
			}
		})
	}
}

func TestLogFlags(t *testing.T) {
	cmd := NewRootCmd()

	// Test that log-level flag is registered
	logFlag := cmd.PersistentFlags().Lookup("log-level")
	if logFlag == nil {
		t.Error("Expected log-level flag to be registered")
		return
	}

	if logFlag.DefValue != "info" {
		t.Errorf("Expected default log-level to be 'info', got %s", logFlag.DefValue)
	}

	// Test that json-logs flag is registered
	jsonFlag := cmd.PersistentFlags().Lookup("json-logs")
	if jsonFlag == nil {
		t.Error("Expected json-logs flag to be registered")
		return
	}
}

func TestConfigFlag(t *testing.T) {
	cmd := NewRootCmd()

	cfgFlag := cmd.PersistentFlags().Lookup("config")
	if cfgFlag == nil {
		t.Fatal("Expected config flag to be registered")
	}
	if cfgFlag.DefValue != "" {
		t.Errorf("Expected empty default config path, got %q", cfgFlag.DefValue)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LoggingConfig
		wantErr   bool
		wantJSON  bool
		wantDebug bool
	}{
		{name: "text info", cfg: config.LoggingConfig{Level: "info", Format: "text"}},
		{name: "json debug", cfg: config.LoggingConfig{Level: "DEBUG", Format: "json"}, wantJSON: true, wantDebug: true},
		{name: "warning alias", cfg: config.LoggingConfig{Level: "warning", Format: "text"}},
		{name: "bogus level", cfg: config.LoggingConfig{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			l, err := newLogger(buf, tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			l.Debug("debug line")
			l.Error("error line", "path", "/m/a.flac")

			out := buf.String()
			assert.Contains(t, out, "error line")
			assert.Equal(t, tt.wantDebug, strings.Contains(out, "debug line"))
			assert.Equal(t, tt.wantJSON, strings.HasPrefix(out, "{"))
		})
	}
}

func TestRootArg(t *testing.T) {
	assert.Equal(t, ".", rootArg(nil))
	assert.Equal(t, ".", rootArg([]string{""}))
	assert.Equal(t, "/music", rootArg([]string{"/music"}))
}

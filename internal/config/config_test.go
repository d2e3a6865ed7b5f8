package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func freshFlags(t *testing.T) {
	t.Helper()
	// Use a fresh FlagSet to avoid interfering with global flags in other tests.
	orig := flag.CommandLine
	flag.CommandLine = flag.NewFlagSet("test", flag.ContinueOnError)
	t.Cleanup(func() { flag.CommandLine = orig })
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "receiver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestRegisterFlags_Defaults(t *testing.T) {
	freshFlags(t)

	read := RegisterFlags()
	// Parse no args -> defaults
	require.NoError(t, flag.CommandLine.Parse([]string{}))

	cfg, err := read()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:8888", cfg.ListenAddr)
	require.Equal(t, time.Second, cfg.ReceiveTimeout)
	require.Equal(t, 1024, cfg.MaxDatagramSize)
	require.Equal(t, 5*time.Second, cfg.ReportInterval)
	require.Equal(t, FormatText, cfg.OutputFormat)
	require.True(t, cfg.Preflight)
	require.Empty(t, cfg.ForwardEndpoint)
	require.Equal(t, 256, cfg.ForwardQueue)
}

func TestRegisterFlags_Overrides(t *testing.T) {
	freshFlags(t)

	read := RegisterFlags()
	args := []string{
		"-listenAddr", "127.0.0.1:9999",
		"-receiveTimeout", "250ms",
		"-maxDatagramSize", "512",
		"-reportInterval", "2s",
		"-outputFormat", "json",
		"-logLevel", "debug",
		"-telemetryFile", "/tmp/otel.out",
		"-preflight=false",
		"-forwardEndpoint", "localhost:4317",
		"-forwardTimeout", "3s",
		"-forwardQueue", "16",
	}
	require.NoError(t, flag.CommandLine.Parse(args))

	cfg, err := read()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", cfg.ListenAddr)
	require.Equal(t, 250*time.Millisecond, cfg.ReceiveTimeout)
	require.Equal(t, 512, cfg.MaxDatagramSize)
	require.Equal(t, 2*time.Second, cfg.ReportInterval)
	require.Equal(t, FormatJSON, cfg.OutputFormat)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "/tmp/otel.out", cfg.TelemetryFile)
	require.False(t, cfg.Preflight)
	require.Equal(t, "localhost:4317", cfg.ForwardEndpoint)
	require.Equal(t, 3*time.Second, cfg.ForwardTimeout)
	require.Equal(t, 16, cfg.ForwardQueue)
}

func TestRegisterFlags_FileWithFlagOverride(t *testing.T) {
	freshFlags(t)

	path := writeFile(t, "listen_addr: 127.0.0.1:7000\nreport_interval: 10s\noutput_format: json\npreflight: false\n")

	read := RegisterFlags()
	require.NoError(t, flag.CommandLine.Parse([]string{"-config", path, "-outputFormat", "text"}))

	cfg, err := read()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7000", cfg.ListenAddr)
	require.Equal(t, 10*time.Second, cfg.ReportInterval)
	require.Equal(t, FormatText, cfg.OutputFormat, "explicit flag wins over file")
	require.False(t, cfg.Preflight)
	// untouched keys keep defaults
	require.Equal(t, time.Second, cfg.ReceiveTimeout)
	require.Equal(t, 1024, cfg.MaxDatagramSize)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "listen_addr: [unterminated\n"))
	require.ErrorContains(t, err, "parse")

	_, err = Load(writeFile(t, "output_format: xml\n"))
	require.ErrorContains(t, err, "outputFormat")
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty_addr", func(c *Config) { c.ListenAddr = "" }, "listenAddr"},
		{"zero_timeout", func(c *Config) { c.ReceiveTimeout = 0 }, "receiveTimeout"},
		{"negative_size", func(c *Config) { c.MaxDatagramSize = -1 }, "maxDatagramSize"},
		{"zero_interval", func(c *Config) { c.ReportInterval = 0 }, "reportInterval"},
		{"bad_format", func(c *Config) { c.OutputFormat = "csv" }, "outputFormat"},
		{"forward_without_timeout", func(c *Config) {
			c.ForwardEndpoint = "localhost:4317"
			c.ForwardTimeout = 0
		}, "forwardTimeout"},
		{"forward_without_queue", func(c *Config) {
			c.ForwardEndpoint = "localhost:4317"
			c.ForwardQueue = 0
		}, "forwardQueue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestRegisterFlags_PreflightHelpNamesReuse(t *testing.T) {
	freshFlags(t)

	_ = RegisterFlags()

	f := flag.CommandLine.Lookup("preflight")
	require.NotNil(t, f)
	require.Contains(t, f.Usage, "SO_REUSEADDR")
	require.Contains(t, f.Usage, "-preflight=false")
}

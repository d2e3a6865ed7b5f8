package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Output formats understood by the receiver.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds instance-level configuration for the receiver.
type Config struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReceiveTimeout  time.Duration `yaml:"receive_timeout"`
	MaxDatagramSize int           `yaml:"max_datagram_size"`
	ReportInterval  time.Duration `yaml:"report_interval"`

	OutputFormat  string `yaml:"output_format"`
	LogLevel      string `yaml:"log_level"`
	TelemetryFile string `yaml:"telemetry_file"`
	Preflight     bool   `yaml:"preflight"`

	ForwardEndpoint string        `yaml:"forward_endpoint"`
	ForwardTimeout  time.Duration `yaml:"forward_timeout"`
	ForwardQueue    int           `yaml:"forward_queue"`
}

// Default returns the configuration the sensor node expects: wildcard bind on
// port 8888, 1s receive window, 1024 byte datagrams and a 5s rate window.
func Default() Config {
	return Config{
		ListenAddr:      "0.0.0.0:8888",
		ReceiveTimeout:  time.Second,
		MaxDatagramSize: 1024,
		ReportInterval:  5 * time.Second,
		OutputFormat:    FormatText,
		LogLevel:        "info",
		Preflight:       true,
		ForwardTimeout:  2 * time.Second,
		ForwardQueue:    256,
	}
}

// Validate reports every invalid setting, joined.
func (c Config) Validate() error {
	var errs []error

	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listenAddr must not be empty"))
	}

	if c.ReceiveTimeout <= 0 {
		errs = append(errs, fmt.Errorf("receiveTimeout must be positive, got %s", c.ReceiveTimeout))
	}

	if c.MaxDatagramSize <= 0 {
		errs = append(errs, fmt.Errorf("maxDatagramSize must be positive, got %d", c.MaxDatagramSize))
	}

	if c.ReportInterval <= 0 {
		errs = append(errs, fmt.Errorf("reportInterval must be positive, got %s", c.ReportInterval))
	}

	switch c.OutputFormat {
	case FormatText, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unknown outputFormat %q (want text|json)", c.OutputFormat))
	}

	if c.ForwardEndpoint != "" && c.ForwardTimeout <= 0 {
		errs = append(errs, fmt.Errorf("forwardTimeout must be positive, got %s", c.ForwardTimeout))
	}

	if c.ForwardEndpoint != "" && c.ForwardQueue <= 0 {
		errs = append(errs, fmt.Errorf("forwardQueue must be positive, got %d", c.ForwardQueue))
	}

	return errors.Join(errs...)
}

// Load reads a YAML config file on top of Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate %s: %w", path, err)
	}

	return cfg, nil
}

// RegisterFlags registers CLI flags and returns a reader that captures them after flag.Parse().
// When -config names a file, its values are used and only flags set explicitly on the
// command line override them.
func RegisterFlags() func() (Config, error) {
	def := Default()

	configFile := flag.String("config", "", "Optional YAML config file")
	listenAddr := flag.String("listenAddr", def.ListenAddr, "UDP address to listen on")
	recvTimeout := flag.Duration("receiveTimeout", def.ReceiveTimeout, "Receive wakeup interval")
	maxSize := flag.Int("maxDatagramSize", def.MaxDatagramSize, "Max datagram size in bytes")
	interval := flag.Duration("reportInterval", def.ReportInterval, "Throughput report interval")
	outFmt := flag.String("outputFormat", def.OutputFormat, "Output format: text|json")
	logLevel := flag.String("logLevel", def.LogLevel, "Log level: debug|info|warn|error")
	telemetry := flag.String("telemetryFile", def.TelemetryFile, "File for OTel stdout exporters (default stderr)")
	preflight := flag.Bool("preflight", def.Preflight,
		"Fail if another listener holds the port. The socket uses SO_REUSEADDR, so with -preflight=false a second receiver binds silently")
	forward := flag.String("forwardEndpoint", def.ForwardEndpoint, "OTLP gRPC endpoint to forward samples to")
	forwardTimeout := flag.Duration("forwardTimeout", def.ForwardTimeout, "Per-export timeout for forwarding, also bounds the drain on shutdown")
	forwardQueue := flag.Int("forwardQueue", def.ForwardQueue, "Records buffered for forwarding; more are dropped and counted")

	return func() (Config, error) {
		fromFlags := Config{
			ListenAddr:      *listenAddr,
			ReceiveTimeout:  *recvTimeout,
			MaxDatagramSize: *maxSize,
			ReportInterval:  *interval,
			OutputFormat:    *outFmt,
			LogLevel:        *logLevel,
			TelemetryFile:   *telemetry,
			Preflight:       *preflight,
			ForwardEndpoint: *forward,
			ForwardTimeout:  *forwardTimeout,
			ForwardQueue:    *forwardQueue,
		}

		if *configFile == "" {
			return fromFlags, fromFlags.Validate()
		}

		cfg, err := Load(*configFile)
		if err != nil {
			return cfg, err
		}

		overrides := map[string]func(){
			"listenAddr":      func() { cfg.ListenAddr = fromFlags.ListenAddr },
			"receiveTimeout":  func() { cfg.ReceiveTimeout = fromFlags.ReceiveTimeout },
			"maxDatagramSize": func() { cfg.MaxDatagramSize = fromFlags.MaxDatagramSize },
			"reportInterval":  func() { cfg.ReportInterval = fromFlags.ReportInterval },
			"outputFormat":    func() { cfg.OutputFormat = fromFlags.OutputFormat },
			"logLevel":        func() { cfg.LogLevel = fromFlags.LogLevel },
			"telemetryFile":   func() { cfg.TelemetryFile = fromFlags.TelemetryFile },
			"preflight":       func() { cfg.Preflight = fromFlags.Preflight },
			"forwardEndpoint": func() { cfg.ForwardEndpoint = fromFlags.ForwardEndpoint },
			"forwardTimeout":  func() { cfg.ForwardTimeout = fromFlags.ForwardTimeout },
			"forwardQueue":    func() { cfg.ForwardQueue = fromFlags.ForwardQueue },
		}

		flag.Visit(func(f *flag.Flag) {
			if apply, ok := overrides[f.Name]; ok {
				apply()
			}
		})

		return cfg, cfg.Validate()
	}
}

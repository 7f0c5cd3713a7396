package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/gyrusdentatus/nym/pkg/connection"
	"github.com/gyrusdentatus/nym/pkg/discovery"
	"github.com/gyrusdentatus/nym/pkg/transport"
)

// Validation errors.
var (
	ErrNoEndpoints     = errors.New("no endpoints configured")
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	ErrInvalidValue    = errors.New("invalid value")
)

// Duration is a time.Duration read from a YAML string such as "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds client settings.
type Config struct {
	Endpoints       []string        `yaml:"endpoints"`
	InitialBackoff  Duration        `yaml:"initial_backoff"`
	MaxBackoff      Duration        `yaml:"max_backoff"`
	MaxAttempts     int             `yaml:"max_attempts"`
	Jitter          float64         `yaml:"jitter"`
	ConnectTimeout  Duration        `yaml:"connect_timeout"`
	WriteTimeout    Duration        `yaml:"write_timeout"`
	StrictBootstrap bool            `yaml:"strict_bootstrap"`
	ProtocolLog     string          `yaml:"protocol_log"`
	MetricsAddress  string          `yaml:"metrics_address"`
	Discovery       DiscoveryConfig `yaml:"discovery"`
}

// DiscoveryConfig controls mDNS endpoint discovery.
type DiscoveryConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Timeout   Duration `yaml:"timeout"`
	Interface string   `yaml:"interface"`
}

// Default returns the default configuration. It has no endpoints.
func Default() *Config {
	return &Config{
		InitialBackoff: Duration(connection.InitialBackoff),
		MaxBackoff:     Duration(connection.MaxBackoff),
		MaxAttempts:    connection.DefaultMaxAttempts,
		ConnectTimeout: Duration(transport.DefaultConnectTimeout),
		Discovery: DiscoveryConfig{
			Timeout: Duration(discovery.DefaultBrowseTimeout),
		},
	}
}

// Parse reads YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Load reads and parses a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Validate reports every problem in c. An empty endpoint list is only
// an error when discovery is disabled.
func (c *Config) Validate() error {
	var err error

	if len(c.Endpoints) == 0 && !c.Discovery.Enabled {
		err = multierr.Append(err, ErrNoEndpoints)
	}
	for _, s := range c.Endpoints {
		if _, perr := transport.ParseEndpoint(s); perr != nil {
			err = multierr.Append(err, fmt.Errorf("%w %q: %w", ErrInvalidEndpoint, s, perr))
		}
	}

	if c.InitialBackoff <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: initial_backoff must be positive", ErrInvalidValue))
	}
	if c.MaxBackoff < c.InitialBackoff {
		err = multierr.Append(err, fmt.Errorf("%w: max_backoff %s below initial_backoff %s",
			ErrInvalidValue, c.MaxBackoff.Std(), c.InitialBackoff.Std()))
	}
	if c.MaxAttempts < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: max_attempts must not be negative", ErrInvalidValue))
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		err = multierr.Append(err, fmt.Errorf("%w: jitter must be within [0, 1]", ErrInvalidValue))
	}
	if c.ConnectTimeout < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: connect_timeout must not be negative", ErrInvalidValue))
	}
	if c.WriteTimeout < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: write_timeout must not be negative", ErrInvalidValue))
	}
	if c.Discovery.Enabled && c.Discovery.Timeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: discovery.timeout must be positive", ErrInvalidValue))
	}

	return err
}

// Policy returns the reconnection policy.
func (c *Config) Policy() connection.Policy {
	return connection.Policy{
		Initial:     c.InitialBackoff.Std(),
		Max:         c.MaxBackoff.Std(),
		MaxAttempts: c.MaxAttempts,
		Jitter:      c.Jitter,
	}
}

// ParseEndpoints parses the configured endpoints.
func (c *Config) ParseEndpoints() ([]transport.Endpoint, error) {
	eps := make([]transport.Endpoint, 0, len(c.Endpoints))
	for _, s := range c.Endpoints {
		ep, err := transport.ParseEndpoint(s)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidEndpoint, s, err)
		}
		eps = append(eps, ep)
	}
	return eps, nil
}

// ClientConfig validates c and converts it for transport.NewClient.
// Logger, Metrics and Dialer are left for the caller.
func (c *Config) ClientConfig() (transport.ClientConfig, error) {
	if err := c.Validate(); err != nil {
		return transport.ClientConfig{}, err
	}
	eps, err := c.ParseEndpoints()
	if err != nil {
		return transport.ClientConfig{}, err
	}
	return transport.ClientConfig{
		Endpoints:       eps,
		Policy:          c.Policy(),
		ConnectTimeout:  c.ConnectTimeout.Std(),
		WriteTimeout:    c.WriteTimeout.Std(),
		StrictBootstrap: c.StrictBootstrap,
	}, nil
}

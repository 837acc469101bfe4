// Package config holds the reactor-wide tunables: default operation
// timeouts, reconnect/rebind backoff bounds, and the default EndpointDesc
// applied to a Pipe when an Endpoint produces one. It follows the teacher
// repo's agent/appconfig style of a plain struct plus small
// default-applying helpers, loadable from YAML via gopkg.in/yaml.v2, rather
// than a full flag/viper-style configuration framework this module has no
// use for.
package config

import (
	"time"

	"gopkg.in/yaml.v2"
)

// EndpointDesc carries the per-pipe settings an Endpoint stamps onto every
// Pipe it produces: send/recv priority (1..16, lower preferred) and the
// maximum accepted receive frame size. TCPNoDelay is loaded and defaulted
// here but not passed on to pipes: every pipe enables TCP_NODELAY when it
// opens, whatever this field holds.
type EndpointDesc struct {
	SendPriority uint8 `yaml:"send_priority"`
	RecvPriority uint8 `yaml:"recv_priority"`
	TCPNoDelay   bool  `yaml:"tcp_no_delay"`
	RecvMaxSize  int64 `yaml:"recv_max_size"`
}

// Backoff carries the reconnect/rebind exponential backoff bounds of
// spec.md section 4.3: initial 100ms, doubled per failure, capped at a
// configured maximum, reset on success.
type Backoff struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
}

// Config is the top-level reactor configuration.
type Config struct {
	SendTimeout  time.Duration `yaml:"send_timeout"`
	RecvTimeout  time.Duration `yaml:"recv_timeout"`
	SurveyTime   time.Duration `yaml:"survey_time"`
	RetryTime    time.Duration `yaml:"retry_time"`
	Backoff      Backoff       `yaml:"backoff"`
	EndpointDesc EndpointDesc  `yaml:"endpoint_desc"`
}

const (
	defaultSendTimeout    = 30 * time.Second
	defaultRecvTimeout    = 30 * time.Second
	defaultSurveyTime     = time.Second
	defaultRetryTime      = time.Minute
	defaultBackoffInitial = 100 * time.Millisecond
	defaultBackoffMax     = 10 * time.Second
	defaultPriority       = uint8(8)
	defaultRecvMaxSize    = int64(1024 * 1024)
)

// Default returns the built-in configuration, matching the values spec.md
// names explicitly (100ms/10s backoff, priority 1..16 with 8 as a neutral
// middle default).
func Default() Config {
	return Config{
		SendTimeout: defaultSendTimeout,
		RecvTimeout: defaultRecvTimeout,
		SurveyTime:  defaultSurveyTime,
		RetryTime:   defaultRetryTime,
		Backoff: Backoff{
			Initial: defaultBackoffInitial,
			Max:     defaultBackoffMax,
		},
		EndpointDesc: EndpointDesc{
			SendPriority: defaultPriority,
			RecvPriority: defaultPriority,
			TCPNoDelay:   true,
			RecvMaxSize:  defaultRecvMaxSize,
		},
	}
}

// FromYAML parses a YAML document into a Config, applying Default() first
// so unset fields keep their defaults rather than zeroing out.
func FromYAML(doc []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(doc, &cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// applyDefaults fills in any field yaml.Unmarshal left at its zero value,
// mirroring the teacher's appconfig_parser.go getNumericValue/getStringValue
// pattern of "zero means unset, substitute the default".
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.RecvTimeout == 0 {
		cfg.RecvTimeout = def.RecvTimeout
	}
	if cfg.SurveyTime == 0 {
		cfg.SurveyTime = def.SurveyTime
	}
	if cfg.RetryTime == 0 {
		cfg.RetryTime = def.RetryTime
	}
	if cfg.Backoff.Initial == 0 {
		cfg.Backoff.Initial = def.Backoff.Initial
	}
	if cfg.Backoff.Max == 0 {
		cfg.Backoff.Max = def.Backoff.Max
	}
	if cfg.EndpointDesc.SendPriority == 0 {
		cfg.EndpointDesc.SendPriority = def.EndpointDesc.SendPriority
	}
	if cfg.EndpointDesc.RecvPriority == 0 {
		cfg.EndpointDesc.RecvPriority = def.EndpointDesc.RecvPriority
	}
	if cfg.EndpointDesc.RecvMaxSize == 0 {
		cfg.EndpointDesc.RecvMaxSize = def.EndpointDesc.RecvMaxSize
	}
}

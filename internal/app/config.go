package app

import "errors"

// Config holds everything an App instance needs to run.
type Config struct {
	GraphPath string // JSON graph snapshot

	LogFormat   string
	LogLevel    string
	ControlPort int
	EvalTargets []string
}

// NewConfig validates a Config. A graph path is required unless the
// control server is enabled, in which case the engine may start empty and
// receive its first snapshot over the wire.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.GraphPath == "" && cfg.ControlPort <= 0 {
		return nil, errors.New("a graph path is required when the control server is disabled")
	}
	return &cfg, nil
}

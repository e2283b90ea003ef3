package config

// RetryConfig mirrors the scheduler's retry policy in config form; all
// durations are milliseconds.
type RetryConfig struct {
	InitialIntervalMS int     `json:"initial_interval_ms,omitempty"`
	MaxIntervalMS     int     `json:"max_interval_ms,omitempty"`
	MaxElapsedTimeMS  int     `json:"max_elapsed_time_ms,omitempty"`
	Multiplier        float64 `json:"multiplier,omitempty"`
}

// TaskflowConfig is the top-level configuration for the demo binary.
type TaskflowConfig struct {
	Workers       int         `json:"workers"`                  // worker pool size (0 = number of CPUs)
	TickCeilingMS int         `json:"tick_ceiling_ms"`          // dispatcher sleep ceiling
	HistoryPath   string      `json:"history_path,omitempty"`   // fire journal location ("" disables)
	Retry         RetryConfig `json:"retry"`                    // default retry policy for pipeline stages
	RetryEnabled  bool        `json:"retry_enabled"`            // apply Retry to pipeline stages
}

package config

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *TaskflowConfig {
	return &TaskflowConfig{
		Workers:       4,
		TickCeilingMS: 100,
		Retry: RetryConfig{
			InitialIntervalMS: 100,
			MaxIntervalMS:     10_000,
			MaxElapsedTimeMS:  120_000,
			Multiplier:        2.0,
		},
	}
}

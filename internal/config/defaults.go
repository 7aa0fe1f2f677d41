package config

// DefaultConfig returns the gateway's baseline configuration. Values
// mirror the deployment defaults: a sixteen-slot admission budget, a
// ten-minute inference deadline, and five-second health probes.
func DefaultConfig() *Config {
	return &Config{
		Host:                      "0.0.0.0",
		Port:                      "8080",
		ExecutorURL:               "http://paddleocr-vl-executor:8000",
		MaxConcurrentRequests:     16,
		InferenceTimeoutSeconds:   600,
		HealthCheckTimeoutSeconds: 5,
		Operations:                []string{"layout-parsing"},
		LogLevel:                  "info",
		FilterHealthAccessLog:     true,
	}
}

package concurrency

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// RuntimeMode selects which local task runtime the driver builds.
type RuntimeMode string

const (
	RuntimeModePool       RuntimeMode = "pool"
	RuntimeModeSequential RuntimeMode = "sequential"
)

// ConfigSource indicates where the configuration came from
type ConfigSource string

const (
	ConfigSourceEnvVar     ConfigSource = "environment_variable"
	ConfigSourceAutoDetect ConfigSource = "auto_detect"
	ConfigSourceDefault    ConfigSource = "default"
)

// Config holds concurrency configuration parameters
type Config struct {
	MaxConcurrent int
	PoolWorkers   int
	RuntimeMode   RuntimeMode
	Source        ConfigSource
	IsKubernetes  bool
	EffectiveCPUs int
}

// LoadConfig loads concurrency configuration with priority:
// env vars > auto-detection > defaults
func LoadConfig() *Config {
	config := &Config{}

	// Detect if running in Kubernetes
	config.IsKubernetes = isKubernetes()

	// Get effective CPUs (respects cgroup limits)
	config.EffectiveCPUs = GetEffectiveCPUs()

	// Load MaxConcurrent with priority
	if maxConcurrent := getEnvInt("HELIOS_MAX_CONCURRENT", 0); maxConcurrent > 0 {
		config.MaxConcurrent = maxConcurrent
		config.Source = ConfigSourceEnvVar
	} else if multiplier := getEnvInt("HELIOS_CONCURRENCY_MULTIPLIER", 0); multiplier > 0 {
		config.MaxConcurrent = GetOptimalConcurrency(multiplier)
		config.Source = ConfigSourceEnvVar
	} else {
		config.MaxConcurrent = getDefaultMaxConcurrent(config.IsKubernetes, config.EffectiveCPUs)
		config.Source = ConfigSourceAutoDetect
	}

	// Ensure minimum value
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}

	// Load PoolWorkers
	if workers := getEnvInt("HELIOS_POOL_WORKERS", 0); workers > 0 {
		config.PoolWorkers = workers
	} else {
		config.PoolWorkers = getDefaultPoolWorkers(config.IsKubernetes, config.EffectiveCPUs)
	}

	// Load RuntimeMode
	if mode := getEnv("HELIOS_RUNTIME_MODE", ""); mode != "" {
		config.RuntimeMode = RuntimeMode(strings.ToLower(mode))
	} else {
		config.RuntimeMode = RuntimeModePool
	}

	// Validate RuntimeMode
	if config.RuntimeMode != RuntimeModePool && config.RuntimeMode != RuntimeModeSequential {
		config.RuntimeMode = RuntimeModePool
	}

	return config
}

// isKubernetes detects if the application is running in Kubernetes
func isKubernetes() bool {
	// Kubernetes sets this environment variable in all containers
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

// getDefaultMaxConcurrent returns sensible defaults based on environment
func getDefaultMaxConcurrent(isK8s bool, cpus int) int {
	if isK8s {
		// Conservative for Kubernetes to prevent resource exhaustion
		return cpus * 2
	}
	// More aggressive for bare metal
	return cpus * 4
}

// getDefaultPoolWorkers returns sensible defaults for the pool runtime
func getDefaultPoolWorkers(isK8s bool, cpus int) int {
	if isK8s {
		// Conservative for Kubernetes
		return max(cpus, 4)
	}
	// More workers for bare metal
	return max(cpus*2, 8)
}

// getEnvInt retrieves an integer from environment variable with default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnv retrieves a string from environment variable with default fallback
func getEnv(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// max returns the maximum of two integers
func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// String returns a formatted string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{MaxConcurrent: %d, PoolWorkers: %d, RuntimeMode: %s, IsK8s: %t, CPUs: %d, Source: %s}",
		c.MaxConcurrent,
		c.PoolWorkers,
		c.RuntimeMode,
		c.IsKubernetes,
		c.EffectiveCPUs,
		c.Source,
	)
}

// GetOptimalConcurrency calculates optimal concurrency for a given multiplier
func GetOptimalConcurrency(multiplier int) int {
	if multiplier <= 0 {
		multiplier = 2
	}
	return GetEffectiveCPUs() * multiplier
}

package concurrency

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// ConfigSource indicates where the configuration came from.
type ConfigSource string

const (
	ConfigSourceEnvVar     ConfigSource = "environment_variable"
	ConfigSourceAutoDetect ConfigSource = "auto_detect"
)

// Config holds the concurrency parameters for engine runs.
type Config struct {
	// MaxParallelism bounds the number of node executions in flight per run.
	MaxParallelism int
	// IsKubernetes is true when running inside a Kubernetes pod.
	IsKubernetes bool
	// EffectiveCPUs is the CPU count after cgroup limits are applied.
	EffectiveCPUs int
	// Source records which mechanism produced the values.
	Source ConfigSource
}

// LoadConfig loads concurrency configuration with priority: environment
// variables, then auto-detection from the effective CPU count.
func LoadConfig() *Config {
	cfg := &Config{
		IsKubernetes:  isKubernetes(),
		EffectiveCPUs: runtime.GOMAXPROCS(0),
	}

	if v := getEnvInt("DAEDALUS_MAX_PARALLELISM", 0); v > 0 {
		cfg.MaxParallelism = v
		cfg.Source = ConfigSourceEnvVar
	} else if mult := getEnvInt("DAEDALUS_PARALLELISM_MULTIPLIER", 0); mult > 0 {
		cfg.MaxParallelism = cfg.EffectiveCPUs * mult
		cfg.Source = ConfigSourceEnvVar
	} else {
		cfg.MaxParallelism = defaultParallelism(cfg.IsKubernetes, cfg.EffectiveCPUs)
		cfg.Source = ConfigSourceAutoDetect
	}

	if cfg.MaxParallelism < 1 {
		cfg.MaxParallelism = 1
	}
	return cfg
}

// isKubernetes detects a Kubernetes environment; the service host variable is
// set in every container.
func isKubernetes() bool {
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

// defaultParallelism is conservative under Kubernetes to avoid exhausting a
// pod's CPU quota with blocked workers.
func defaultParallelism(isK8s bool, cpus int) int {
	if isK8s {
		return cpus * 2
	}
	return cpus * 4
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// String returns a formatted representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf("Config{MaxParallelism: %d, IsK8s: %t, CPUs: %d, Source: %s}",
		c.MaxParallelism, c.IsKubernetes, c.EffectiveCPUs, c.Source)
}

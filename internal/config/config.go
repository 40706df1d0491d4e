// Package config defines the tunable thresholds for capacity analysis.
// A Config is materialized once at startup and passed by value into the
// analysis code; nothing mutates it mid-run.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Environment names recognized for sizing policy selection.
const (
	EnvProd    = "prod"
	EnvNonprod = "nonprod"
)

const (
	mib = 1024 * 1024
	gib = 1024 * mib
)

// Sizing holds the pod resize multipliers and floors.
type Sizing struct {
	CPUFloorProd    float64 `mapstructure:"cpu-floor-prod"`
	CPUFloorNonprod float64 `mapstructure:"cpu-floor-nonprod"`

	CPURequestMultiplier      float64 `mapstructure:"cpu-request-multiplier"`
	CPULimitRequestMultiplier float64 `mapstructure:"cpu-limit-request-multiplier"`
	CPULimitPeakMultiplier    float64 `mapstructure:"cpu-limit-peak-multiplier"`

	MemorySafetyProd             float64 `mapstructure:"memory-safety-prod"`
	MemorySafetyNonprod          float64 `mapstructure:"memory-safety-nonprod"`
	MemoryLimitRequestMultiplier float64 `mapstructure:"memory-limit-request-multiplier"`
	MemoryLimitPeakMultiplier    float64 `mapstructure:"memory-limit-peak-multiplier"`

	// ChangeTolerance suppresses recommendations that move every value by
	// less than this fraction of the proposed value.
	ChangeTolerance float64 `mapstructure:"change-tolerance"`

	// MemoryBucketsBytes is the rounding ladder for memory requests.
	// Values above the largest bucket pass through unnormalized.
	MemoryBucketsBytes []float64 `mapstructure:"memory-buckets-bytes"`
	MemoryBucketBuffer float64   `mapstructure:"memory-bucket-buffer"`
}

// NodeThresholds holds node rightsizing decision bounds.
type NodeThresholds struct {
	CPULowPct     float64 `mapstructure:"cpu-low-pct"`
	CPUHighPct    float64 `mapstructure:"cpu-high-pct"`
	MemoryLowPct  float64 `mapstructure:"memory-low-pct"`
	MemoryHighPct float64 `mapstructure:"memory-high-pct"`

	// UsableCapacityFactor discounts allocatable capacity for system
	// overhead when computing how many nodes demand actually needs.
	UsableCapacityFactor float64 `mapstructure:"usable-capacity-factor"`

	ShapeImbalanceThreshold float64 `mapstructure:"shape-imbalance-threshold"`

	// ModeratelyOversizedEfficiency is the blended efficiency below which
	// a smaller-node strategy becomes a candidate.
	ModeratelyOversizedEfficiency float64 `mapstructure:"moderately-oversized-efficiency"`
	MinPodsPerNode                int     `mapstructure:"min-pods-per-node"`
}

// HPAThresholds holds HPA misalignment detection bounds, as ratios of
// usage to request (or utilization fraction).
type HPAThresholds struct {
	CPULowRatio     float64 `mapstructure:"cpu-low-ratio"`
	MemoryHighRatio float64 `mapstructure:"memory-high-ratio"`
	FloorUtilRatio  float64 `mapstructure:"floor-util-ratio"`
	MinReplicaFloor int     `mapstructure:"min-replica-floor"`
}

// FragmentationThresholds holds the attribution pass bounds.
type FragmentationThresholds struct {
	// Threshold is the fragmentation ratio at or above which a node gets
	// the attribution pass.
	Threshold float64 `mapstructure:"threshold"`

	// LargePodRequestFraction flags pods requesting more than this share
	// of node allocatable on either resource.
	LargePodRequestFraction float64 `mapstructure:"large-pod-request-fraction"`

	// DaemonSetOverheadPct flags nodes where daemonset requests exceed
	// this percentage of allocatable.
	DaemonSetOverheadPct float64 `mapstructure:"daemonset-overhead-pct"`

	// MaxBlockers caps the scale-down blocker list per node.
	MaxBlockers int `mapstructure:"max-blockers"`
}

// Config is the complete, immutable analysis configuration.
type Config struct {
	Environment string `mapstructure:"environment"`

	MetricsWindow time.Duration `mapstructure:"metrics-window"`
	MinWindow     time.Duration `mapstructure:"min-window"`
	MinSamples    int           `mapstructure:"min-samples"`

	BurstRatioThreshold   float64 `mapstructure:"burst-ratio-threshold"`
	MaxOverprovisionRatio float64 `mapstructure:"max-overprovision-ratio"`

	Sizing        Sizing                  `mapstructure:"sizing"`
	Node          NodeThresholds          `mapstructure:"node"`
	HPA           HPAThresholds           `mapstructure:"hpa"`
	Fragmentation FragmentationThresholds `mapstructure:"fragmentation"`
}

// Default returns the shipped thresholds.
func Default() Config {
	return Config{
		Environment: EnvNonprod,

		MetricsWindow: 15 * time.Minute,
		MinWindow:     10 * time.Minute,
		MinSamples:    5,

		BurstRatioThreshold:   2.0,
		MaxOverprovisionRatio: 5.0,

		Sizing: Sizing{
			CPUFloorProd:    0.1,
			CPUFloorNonprod: 0.05,

			CPURequestMultiplier:      1.20,
			CPULimitRequestMultiplier: 1.50,
			CPULimitPeakMultiplier:    1.25,

			MemorySafetyProd:             1.15,
			MemorySafetyNonprod:          1.10,
			MemoryLimitRequestMultiplier: 1.50,
			MemoryLimitPeakMultiplier:    1.25,

			ChangeTolerance: 0.10,

			MemoryBucketsBytes: []float64{
				256 * mib, 512 * mib, 1 * gib, 2 * gib, 4 * gib, 8 * gib, 16 * gib,
			},
			MemoryBucketBuffer: 0.98,
		},

		Node: NodeThresholds{
			CPULowPct:     30,
			CPUHighPct:    80,
			MemoryLowPct:  30,
			MemoryHighPct: 80,

			UsableCapacityFactor:          0.8,
			ShapeImbalanceThreshold:       0.3,
			ModeratelyOversizedEfficiency: 0.4,
			MinPodsPerNode:                10,
		},

		HPA: HPAThresholds{
			CPULowRatio:     0.20,
			MemoryHighRatio: 0.90,
			FloorUtilRatio:  0.30,
			MinReplicaFloor: 2,
		},

		Fragmentation: FragmentationThresholds{
			Threshold:               0.5,
			LargePodRequestFraction: 0.25,
			DaemonSetOverheadPct:    10,
			MaxBlockers:             10,
		},
	}
}

// Load materializes a Config from viper state layered over the defaults.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if v != nil {
		if err := v.Unmarshal(&cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsProd reports whether prod sizing policy applies.
func (c Config) IsProd() bool {
	return c.Environment == EnvProd
}

// CPUFloor returns the minimum CPU request for the configured environment.
func (c Config) CPUFloor() float64 {
	if c.IsProd() {
		return c.Sizing.CPUFloorProd
	}
	return c.Sizing.CPUFloorNonprod
}

// MemorySafety returns the memory safety factor for the configured environment.
func (c Config) MemorySafety() float64 {
	if c.IsProd() {
		return c.Sizing.MemorySafetyProd
	}
	return c.Sizing.MemorySafetyNonprod
}

// Validate rejects configurations that would make the analysis meaningless.
func (c Config) Validate() error {
	if c.Environment != EnvProd && c.Environment != EnvNonprod {
		return fmt.Errorf("environment must be %q or %q, got %q", EnvProd, EnvNonprod, c.Environment)
	}
	if c.MinSamples < 1 {
		return fmt.Errorf("min-samples must be at least 1, got %d", c.MinSamples)
	}
	if c.MinWindow <= 0 {
		return fmt.Errorf("min-window must be positive, got %s", c.MinWindow)
	}
	if c.BurstRatioThreshold <= 0 {
		return fmt.Errorf("burst-ratio-threshold must be positive, got %v", c.BurstRatioThreshold)
	}
	if c.MaxOverprovisionRatio <= 1 {
		return fmt.Errorf("max-overprovision-ratio must exceed 1, got %v", c.MaxOverprovisionRatio)
	}
	if c.Sizing.ChangeTolerance < 0 || c.Sizing.ChangeTolerance >= 1 {
		return fmt.Errorf("change-tolerance must be in [0, 1), got %v", c.Sizing.ChangeTolerance)
	}
	if c.Sizing.MemoryBucketBuffer <= 0 || c.Sizing.MemoryBucketBuffer > 1 {
		return fmt.Errorf("memory-bucket-buffer must be in (0, 1], got %v", c.Sizing.MemoryBucketBuffer)
	}
	for i := 1; i < len(c.Sizing.MemoryBucketsBytes); i++ {
		if c.Sizing.MemoryBucketsBytes[i] <= c.Sizing.MemoryBucketsBytes[i-1] {
			return fmt.Errorf("memory-buckets-bytes must be strictly increasing")
		}
	}
	if c.Node.UsableCapacityFactor <= 0 || c.Node.UsableCapacityFactor > 1 {
		return fmt.Errorf("usable-capacity-factor must be in (0, 1], got %v", c.Node.UsableCapacityFactor)
	}
	if c.Node.CPULowPct >= c.Node.CPUHighPct {
		return fmt.Errorf("node cpu-low-pct must be below cpu-high-pct")
	}
	if c.Node.MemoryLowPct >= c.Node.MemoryHighPct {
		return fmt.Errorf("node memory-low-pct must be below memory-high-pct")
	}
	if c.Fragmentation.Threshold < 0 || c.Fragmentation.Threshold > 1 {
		return fmt.Errorf("fragmentation threshold must be in [0, 1], got %v", c.Fragmentation.Threshold)
	}
	if c.Fragmentation.MaxBlockers < 1 {
		return fmt.Errorf("fragmentation max-blockers must be at least 1, got %d", c.Fragmentation.MaxBlockers)
	}
	return nil
}

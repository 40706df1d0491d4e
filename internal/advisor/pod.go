package advisor

import (
	"fmt"
	"math"
	"strings"

	"github.com/kubefit/kubefit/internal/config"
	"github.com/kubefit/kubefit/internal/profile"
)

// RecommendPodResize sizes one workload from its profile. Returns nil when
// usage data is missing or every proposed value sits inside the change
// tolerance of what is already configured.
func RecommendPodResize(p profile.PodProfile, cfg config.Config) *Recommendation {
	if p.CPU == nil || p.Memory == nil {
		return nil
	}

	cpuP99 := p.CPU.P99
	cpuPeak := p.CPU.P100
	if cpuPeak == 0 {
		cpuPeak = cpuP99
	}
	memP99 := p.Memory.P99
	memPeak := p.Memory.P100
	if memPeak == 0 {
		memPeak = memP99
	}

	cpuRequest := math.Max(cpuP99*cfg.Sizing.CPURequestMultiplier, cfg.CPUFloor())
	cpuLimit := math.Max(cpuRequest*cfg.Sizing.CPULimitRequestMultiplier, cpuPeak*cfg.Sizing.CPULimitPeakMultiplier)

	memRequest := normalizeMemory(memP99*cfg.MemorySafety(), cfg.Sizing)
	memLimit := math.Max(memRequest*cfg.Sizing.MemoryLimitRequestMultiplier, memPeak*cfg.Sizing.MemoryLimitPeakMultiplier)

	cpuChanged := exceedsTolerance(cpuRequest, p.Requests.CPU, 0.001, cfg.Sizing.ChangeTolerance)
	memChanged := exceedsTolerance(memRequest, p.Requests.Memory, 1, cfg.Sizing.ChangeTolerance)
	if !cpuChanged && !memChanged {
		return nil
	}

	cpuDiff := cpuRequest - deref(p.Requests.CPU)
	memDiff := memRequest - deref(p.Requests.Memory)

	detail := &PodResizeDetail{
		Namespace: p.Identity.Namespace,
		Pod:       p.Identity.Pod,
		Current: ResourcePair{
			CPURequest:    p.Requests.CPU,
			CPULimit:      p.Limits.CPU,
			MemoryRequest: p.Requests.Memory,
			MemoryLimit:   p.Limits.Memory,
		},
		Recommended: ResourcePair{
			CPURequest:    ptr(round4(cpuRequest)),
			CPULimit:      ptr(round4(cpuLimit)),
			MemoryRequest: ptr(math.Trunc(memRequest)),
			MemoryLimit:   ptr(math.Trunc(memLimit)),
		},
		Savings: Savings{
			CPUCores:    round4(-cpuDiff),
			MemoryBytes: -math.Trunc(memDiff),
			MemoryMB:    round1(-memDiff / (1024 * 1024)),
		},
		UsagePercentiles: UsagePercentiles{
			CPUP95:     round4(p.CPU.P95),
			CPUP99:     round4(cpuP99),
			CPUP100:    round4(p.CPU.P100),
			MemoryP95:  math.Trunc(p.Memory.P95),
			MemoryP99:  math.Trunc(memP99),
			MemoryP100: math.Trunc(p.Memory.P100),
		},
		Explanation: podResizeExplanation(p, cpuRequest, memRequest, cfg),
	}

	return &Recommendation{
		Type:      KindPodResize,
		PodResize: detail,
		Safety:    Classify(p, cfg),
	}
}

// normalizeMemory rounds a raw memory request up to the smallest ladder
// bucket whose buffered capacity covers it. Values above the largest
// bucket pass through unchanged.
func normalizeMemory(raw float64, s config.Sizing) float64 {
	for _, bucket := range s.MemoryBucketsBytes {
		if bucket*s.MemoryBucketBuffer >= raw {
			return bucket
		}
	}
	return raw
}

// exceedsTolerance reports whether moving from current to proposed is a
// real change. The denominator is the proposed value clamped to a unit
// floor so near-zero proposals do not explode the ratio.
func exceedsTolerance(proposed float64, current *float64, unitFloor, tolerance float64) bool {
	base := proposed
	if current != nil {
		base = *current
	}
	return math.Abs((proposed-base)/math.Max(proposed, unitFloor)) > tolerance
}

func podResizeExplanation(p profile.PodProfile, cpuRequest, memRequest float64, cfg config.Config) string {
	var parts []string

	if p.Requests.CPU != nil && *p.Requests.CPU > 0 {
		change := (cpuRequest - *p.Requests.CPU) / *p.Requests.CPU * 100
		dir := "increase"
		if change < 0 {
			dir = "decrease"
		}
		parts = append(parts, fmt.Sprintf("CPU request %s by %.1f%% based on P99 usage (%.3f cores)", dir, math.Abs(change), p.CPU.P99))
	} else {
		parts = append(parts, fmt.Sprintf("Set CPU request to %.3f cores based on P99 usage", cpuRequest))
	}

	if p.Requests.Memory != nil && *p.Requests.Memory > 0 {
		change := (memRequest - *p.Requests.Memory) / *p.Requests.Memory * 100
		dir := "increase"
		if change < 0 {
			dir = "decrease"
		}
		parts = append(parts, fmt.Sprintf("Memory request %s by %.1f%% based on P99 usage (%.1fMB)", dir, math.Abs(change), p.Memory.P99/1e6))
	} else {
		parts = append(parts, fmt.Sprintf("Set memory request to %.1fMB based on P99 usage", memRequest/1e6))
	}

	if cfg.IsProd() {
		parts = append(parts, fmt.Sprintf("Safety factor: prod (%.2fx)", cfg.Sizing.MemorySafetyProd))
	} else {
		parts = append(parts, fmt.Sprintf("Safety factor: nonprod (%.2fx)", cfg.Sizing.MemorySafetyNonprod))
	}

	if p.Bursty {
		parts = append(parts, "CPU is bursty; limit sized from observed peak")
	}

	return strings.Join(parts, "; ")
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func ptr(v float64) *float64 { return &v }

func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }

func round1(v float64) float64 { return math.Round(v*10) / 10 }

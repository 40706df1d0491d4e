package advisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubefit/kubefit/internal/config"
	"github.com/kubefit/kubefit/internal/profile"
	"github.com/kubefit/kubefit/internal/series"
)

func hpaPod(ns, name string, cpuP95, cpuReq, memP95, memReq float64) profile.PodProfile {
	return profile.PodProfile{
		Identity: profile.Identity{Namespace: ns, Pod: name},
		Requests: profile.Resources{CPU: fp(cpuReq), Memory: fp(memReq)},
		CPU:      &series.Stats{P95: cpuP95},
		Memory:   &series.Stats{P95: memP95},
	}
}

func cpuHPA(ns, name, target string, min, max, current int32) HPAInfo {
	return HPAInfo{
		Namespace:       ns,
		Name:            name,
		TargetKind:      "Deployment",
		TargetName:      target,
		MinReplicas:     min,
		MaxReplicas:     max,
		CurrentReplicas: current,
		ScalesOnCPU:     true,
	}
}

func TestDetectHPALowUtilization(t *testing.T) {
	cfg := config.Default()

	hpas := []HPAInfo{cpuHPA("web", "api-hpa", "api", 1, 10, 3)}
	pods := []profile.PodProfile{
		hpaPod("web", "api-7f9c4-abcde", 0.05, 1.0, 256*mib, 512*mib),
		hpaPod("web", "api-7f9c4-fghij", 0.07, 1.0, 256*mib, 512*mib),
	}

	out := DetectHPAMisalignment(hpas, pods, cfg)
	require.Len(t, out, 1)

	d := out[0].HPAMisalignment
	require.NotNil(t, d)
	assert.Equal(t, HPARuleLowUtilization, d.Rule)
	assert.Equal(t, "api-hpa", d.Name)
	require.NotNil(t, d.CPUUtilRatio)
	assert.InDelta(t, 0.06, *d.CPUUtilRatio, 1e-9)

	assert.Equal(t, GateUnsafe, out[0].Safety.SafeToResize)
	assert.Equal(t, RiskLow, out[0].Safety.Risk)
	assert.Equal(t, ConfidenceMedium, out[0].Safety.Confidence)
	assert.Contains(t, out[0].Safety.Reasons, HPAPodMatchingLimitation)
}

func TestDetectHPAWrongMetric(t *testing.T) {
	cfg := config.Default()

	hpas := []HPAInfo{cpuHPA("web", "cache-hpa", "cache", 1, 10, 4)}
	// CPU idle, memory at 95% of request: low_utilization AND wrong_metric.
	pods := []profile.PodProfile{
		hpaPod("web", "cache-0", 0.10, 1.0, 0.95*gib, 1*gib),
	}

	out := DetectHPAMisalignment(hpas, pods, cfg)
	require.Len(t, out, 2)

	rules := []HPARule{out[0].HPAMisalignment.Rule, out[1].HPAMisalignment.Rule}
	assert.Contains(t, rules, HPARuleLowUtilization)
	assert.Contains(t, rules, HPARuleWrongMetric)
}

func TestDetectHPAFloorTooHigh(t *testing.T) {
	cfg := config.Default()

	// min 5, sitting at the floor, 25% CPU utilization. Above the
	// low-utilization bound but below the floor bound.
	hpas := []HPAInfo{cpuHPA("web", "worker-hpa", "worker", 5, 20, 5)}
	pods := []profile.PodProfile{
		hpaPod("web", "worker-0", 0.25, 1.0, 256*mib, 1*gib),
	}

	out := DetectHPAMisalignment(hpas, pods, cfg)
	require.Len(t, out, 1)

	d := out[0].HPAMisalignment
	assert.Equal(t, HPARuleFloorTooHigh, d.Rule)
	assert.Equal(t, int32(5), d.MinReplicas)
	assert.Contains(t, d.Explanation, "minReplicas")
}

func TestDetectHPAFloorRequiresSittingAtMinimum(t *testing.T) {
	cfg := config.Default()

	// Same floor, but currently scaled above it.
	hpas := []HPAInfo{cpuHPA("web", "worker-hpa", "worker", 5, 20, 8)}
	pods := []profile.PodProfile{
		hpaPod("web", "worker-0", 0.25, 1.0, 256*mib, 1*gib),
	}

	assert.Empty(t, DetectHPAMisalignment(hpas, pods, cfg))
}

func TestDetectHPASkipsUnmatchedTargets(t *testing.T) {
	cfg := config.Default()

	hpas := []HPAInfo{
		cpuHPA("web", "api-hpa", "api", 1, 10, 2),
		cpuHPA("batch", "api-hpa", "api", 1, 10, 2), // wrong namespace
	}
	pods := []profile.PodProfile{
		hpaPod("web", "frontend-0", 0.05, 1.0, 256*mib, 512*mib),
	}

	assert.Empty(t, DetectHPAMisalignment(hpas, pods, cfg))
}

func TestDetectHPAMatchIsSubstring(t *testing.T) {
	cfg := config.Default()

	hpas := []HPAInfo{cpuHPA("web", "api-hpa", "api", 1, 10, 2)}
	pods := []profile.PodProfile{
		hpaPod("web", "api-7f9c4-abcde", 0.05, 1.0, 256*mib, 512*mib),
		hpaPod("web", "legacy-api-0", 0.05, 1.0, 256*mib, 512*mib), // also contains "api"
		hpaPod("web", "frontend-0", 5.0, 1.0, 256*mib, 512*mib),
	}

	out := DetectHPAMisalignment(hpas, pods, cfg)
	require.Len(t, out, 1)
	// Two pods matched: average 0.05 usage over 1.0 request.
	assert.InDelta(t, 0.05, *out[0].HPAMisalignment.CPUUtilRatio, 1e-9)
}

func TestDetectHPANonCPUScalerNeverTripsCPURules(t *testing.T) {
	cfg := config.Default()

	hpa := cpuHPA("web", "api-hpa", "api", 1, 10, 2)
	hpa.ScalesOnCPU = false
	pods := []profile.PodProfile{
		hpaPod("web", "api-0", 0.05, 1.0, 0.95*gib, 1*gib),
	}

	assert.Empty(t, DetectHPAMisalignment([]HPAInfo{hpa}, pods, cfg))
}

func TestDetectHPAConfidenceDropsOnInsufficientPods(t *testing.T) {
	cfg := config.Default()

	hpas := []HPAInfo{cpuHPA("web", "api-hpa", "api", 1, 10, 2)}
	short := hpaPod("web", "api-0", 0.05, 1.0, 256*mib, 512*mib)
	short.InsufficientData = true

	out := DetectHPAMisalignment(hpas, []profile.PodProfile{short}, cfg)
	require.Len(t, out, 1)
	assert.Equal(t, ConfidenceLow, out[0].Safety.Confidence)
}

func TestDetectHPAMissingRequestsSkipsRatios(t *testing.T) {
	cfg := config.Default()

	hpas := []HPAInfo{cpuHPA("web", "api-hpa", "api", 1, 10, 2)}
	pod := profile.PodProfile{
		Identity: profile.Identity{Namespace: "web", Pod: "api-0"},
		CPU:      &series.Stats{P95: 0.05},
	}

	// No requests at all: ratios are undefined, nothing trips.
	assert.Empty(t, DetectHPAMisalignment(hpas, []profile.PodProfile{pod}, cfg))
}

func TestDetectHPAOutputSorted(t *testing.T) {
	cfg := config.Default()

	hpas := []HPAInfo{
		cpuHPA("zeta", "z-hpa", "zapp", 1, 10, 2),
		cpuHPA("alpha", "a-hpa", "aapp", 1, 10, 2),
	}
	pods := []profile.PodProfile{
		hpaPod("zeta", "zapp-0", 0.05, 1.0, 256*mib, 512*mib),
		hpaPod("alpha", "aapp-0", 0.05, 1.0, 256*mib, 512*mib),
	}

	out := DetectHPAMisalignment(hpas, pods, cfg)
	require.Len(t, out, 2)
	assert.Equal(t, "alpha", out[0].HPAMisalignment.Namespace)
	assert.Equal(t, "zeta", out[1].HPAMisalignment.Namespace)
}

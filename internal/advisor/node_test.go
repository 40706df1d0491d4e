package advisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubefit/kubefit/internal/config"
	"github.com/kubefit/kubefit/internal/profile"
	"github.com/kubefit/kubefit/internal/series"
)

func nodeProfile(name string, allocCPU, allocMem, usageCPU, usageMem float64) profile.NodeProfile {
	return profile.NodeProfile{
		Name:              name,
		AllocatableCPU:    allocCPU,
		AllocatableMemory: allocMem,
		UsageCPUP95:       fp(usageCPU),
		UsageMemoryP95:    fp(usageMem),
	}
}

func TestPostResizeDemandPrefersRecommendations(t *testing.T) {
	pods := []profile.PodProfile{
		{
			Identity: profile.Identity{Namespace: "a", Pod: "one"},
			Requests: profile.Resources{CPU: fp(2.0), Memory: fp(4 * gib)},
		},
		{
			Identity: profile.Identity{Namespace: "a", Pod: "two"},
			Requests: profile.Resources{CPU: fp(1.0), Memory: fp(2 * gib)},
		},
		{
			// No requests at all: p99 usage stands in.
			Identity: profile.Identity{Namespace: "a", Pod: "three"},
			CPU:      &series.Stats{P99: 0.3},
		},
	}

	resizes := []Recommendation{{
		Type: KindPodResize,
		PodResize: &PodResizeDetail{
			Namespace:   "a",
			Pod:         "one",
			Recommended: ResourcePair{CPURequest: fp(0.5), MemoryRequest: fp(1 * gib)},
		},
	}}

	demand := PostResizeDemand(pods, resizes)
	assert.Equal(t, 3, demand.Pods)
	assert.InDelta(t, 0.5+1.0+0.3, demand.CPU, 1e-9)
	assert.InDelta(t, float64(1*gib+2*gib), demand.Memory, 1)
}

func TestRecommendNodeRightsizeScaleUp(t *testing.T) {
	cfg := config.Default()

	nodes := []profile.NodeProfile{
		nodeProfile("a", 4, 16*gib, 3.6, 14*gib),
		nodeProfile("b", 4, 16*gib, 3.4, 14.5*gib),
	}
	demand := ClusterDemand{CPU: 7.0, Memory: 28 * gib, Pods: 40}

	rec := RecommendNodeRightsize(nodes, demand, cfg)
	require.NotNil(t, rec)
	require.NotNil(t, rec.NodeRightsize)

	d := rec.NodeRightsize
	assert.Equal(t, DirectionScaleUp, d.Direction)
	// Both resources above the high bound: high confidence.
	assert.Equal(t, ConfidenceHigh, rec.Safety.Confidence)
	assert.Equal(t, RiskHigh, rec.Safety.Risk)
	assert.Equal(t, GateUnsafe, rec.Safety.SafeToResize)
}

func TestRecommendNodeRightsizeScaleUpOneResource(t *testing.T) {
	cfg := config.Default()

	nodes := []profile.NodeProfile{
		nodeProfile("a", 4, 16*gib, 3.6, 8*gib),
	}
	rec := RecommendNodeRightsize(nodes, ClusterDemand{CPU: 3.5, Memory: 8 * gib, Pods: 10}, cfg)
	require.NotNil(t, rec)
	assert.Equal(t, DirectionScaleUp, rec.NodeRightsize.Direction)
	assert.Equal(t, ConfidenceMedium, rec.Safety.Confidence)
}

func TestRecommendNodeRightsizeConsolidate(t *testing.T) {
	cfg := config.Default()

	// Four nodes, demand fits comfortably on two.
	nodes := []profile.NodeProfile{
		nodeProfile("a", 8, 32*gib, 0.8, 3*gib),
		nodeProfile("b", 8, 32*gib, 0.7, 3*gib),
		nodeProfile("c", 8, 32*gib, 0.6, 2*gib),
		nodeProfile("d", 8, 32*gib, 0.5, 2*gib),
	}
	demand := ClusterDemand{CPU: 9.0, Memory: 36 * gib, Pods: 60}

	rec := RecommendNodeRightsize(nodes, demand, cfg)
	require.NotNil(t, rec)

	d := rec.NodeRightsize
	assert.Equal(t, DirectionScaleDown, d.Direction)
	assert.Equal(t, StrategyConsolidate, d.Strategy)
	assert.Equal(t, 4, d.CurrentNodeCount)
	// ceil(9 / (8*0.8)) = 2 by CPU, ceil(36Gi / (32Gi*0.8)) = 2 by memory.
	assert.Equal(t, 2, d.RequiredNodes)
	assert.Equal(t, ConfidenceHigh, rec.Safety.Confidence)
	assert.Equal(t, RiskLow, rec.Safety.Risk)
}

func TestRecommendNodeRightsizeSmallerNodes(t *testing.T) {
	cfg := config.Default()

	// Underused, demand still needs both nodes, but pods are tiny.
	nodes := []profile.NodeProfile{
		nodeProfile("a", 16, 64*gib, 1.5, 6*gib),
		nodeProfile("b", 16, 64*gib, 1.4, 6*gib),
	}
	demand := ClusterDemand{CPU: 14.0, Memory: 56 * gib, Pods: 200}

	rec := RecommendNodeRightsize(nodes, demand, cfg)
	require.NotNil(t, rec)

	d := rec.NodeRightsize
	assert.Equal(t, DirectionScaleDown, d.Direction)
	assert.Equal(t, StrategySmallerNodes, d.Strategy)
	assert.Equal(t, ConfidenceMedium, rec.Safety.Confidence)
}

func TestRecommendNodeRightsizeUnderused(t *testing.T) {
	cfg := config.Default()

	// Low utilization, but demand still needs both nodes and pods are
	// too big for the smaller-node play.
	nodes := []profile.NodeProfile{
		nodeProfile("a", 8, 32*gib, 1.0, 5*gib),
		nodeProfile("b", 8, 32*gib, 1.0, 5*gib),
	}
	demand := ClusterDemand{CPU: 10.0, Memory: 40 * gib, Pods: 8}

	rec := RecommendNodeRightsize(nodes, demand, cfg)
	require.NotNil(t, rec)

	d := rec.NodeRightsize
	assert.Equal(t, DirectionScaleDown, d.Direction)
	assert.Equal(t, StrategyUnderused, d.Strategy)
}

func TestRecommendNodeRightsizeShapeImbalance(t *testing.T) {
	cfg := config.Default()

	// CPU moderately used, memory nearly idle: right-size the shape.
	nodes := []profile.NodeProfile{
		nodeProfile("a", 8, 64*gib, 4.0, 6*gib),
	}
	demand := ClusterDemand{CPU: 5.0, Memory: 6 * gib, Pods: 20}

	rec := RecommendNodeRightsize(nodes, demand, cfg)
	require.NotNil(t, rec)

	d := rec.NodeRightsize
	assert.Equal(t, DirectionRightSize, d.Direction)
	assert.True(t, d.ShapeImbalance)
	assert.Equal(t, "cpu_heavy", d.ShapeBias)
	assert.Equal(t, RiskMedium, rec.Safety.Risk)
}

func TestRecommendNodeRightsizeSingleLowResourceBalancedIsNil(t *testing.T) {
	cfg := config.Default()

	// CPU idle but memory mid-band, pressures within the imbalance
	// threshold: shape is fine and only one resource is low, so neither
	// a scale verdict nor a right-size applies.
	nodes := []profile.NodeProfile{
		nodeProfile("a", 8, 32*gib, 0.8, 16*gib),
		nodeProfile("b", 8, 32*gib, 0.8, 16*gib),
	}
	demand := ClusterDemand{CPU: 4.0, Memory: 20 * gib, Pods: 25}

	assert.Nil(t, RecommendNodeRightsize(nodes, demand, cfg))
}

func TestRecommendNodeRightsizeBalancedIsNil(t *testing.T) {
	cfg := config.Default()

	nodes := []profile.NodeProfile{
		nodeProfile("a", 8, 32*gib, 4.0, 16*gib),
		nodeProfile("b", 8, 32*gib, 4.2, 17*gib),
	}
	demand := ClusterDemand{CPU: 9.0, Memory: 36 * gib, Pods: 30}

	assert.Nil(t, RecommendNodeRightsize(nodes, demand, cfg))
}

func TestRecommendNodeRightsizeEmptyInputs(t *testing.T) {
	cfg := config.Default()
	assert.Nil(t, RecommendNodeRightsize(nil, ClusterDemand{}, cfg))
	assert.Nil(t, RecommendNodeRightsize([]profile.NodeProfile{{Name: "a"}}, ClusterDemand{}, cfg))
}

func TestRequiredNodesBoundariesAndCrossResourceMax(t *testing.T) {
	// Average node 8 CPU / 32Gi at a 0.8 usable factor: 6.4 CPU and
	// 25.6Gi usable per node.
	cases := []struct {
		name string
		cpu  float64
		mem  float64
		want int
	}{
		{"zero demand floors at one", 0, 0, 1},
		{"cpu under usable capacity", 6.3, 1 * gib, 1},
		{"cpu over usable capacity", 6.5, 1 * gib, 2},
		{"memory under usable capacity", 1, 25.5 * gib, 1},
		{"memory over usable capacity", 1, 26 * gib, 2},
		{"max taken across resources", 6.0, 30 * gib, 2},
		{"cpu dominates memory", 20, 1 * gib, 4},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			demand := ClusterDemand{CPU: tc.cpu, Memory: tc.mem}
			assert.Equal(t, tc.want, requiredNodes(demand, 8, 32*gib, 0.8))
		})
	}
}

func TestRequiredNodesMonotonicInDemand(t *testing.T) {
	prev := 0
	for cpu := 0.0; cpu <= 40; cpu += 0.5 {
		got := requiredNodes(ClusterDemand{CPU: cpu, Memory: 8 * gib}, 8, 32*gib, 0.8)
		require.GreaterOrEqual(t, got, prev, "node count dropped as CPU demand rose to %.1f", cpu)
		prev = got
	}

	prev = 0
	for mem := 0.0; mem <= 160; mem += 2 {
		got := requiredNodes(ClusterDemand{CPU: 2, Memory: mem * gib}, 8, 32*gib, 0.8)
		require.GreaterOrEqual(t, got, prev, "node count dropped as memory demand rose to %.0fGi", mem)
		prev = got
	}
}

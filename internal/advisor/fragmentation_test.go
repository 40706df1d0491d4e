package advisor

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubefit/kubefit/internal/config"
	"github.com/kubefit/kubefit/internal/profile"
)

func fragNode(name string, allocCPU, allocMem, reqCPU, reqMem float64) profile.NodeProfile {
	n := profile.NodeProfile{
		Name:              name,
		AllocatableCPU:    allocCPU,
		AllocatableMemory: allocMem,
		RequestedCPU:      reqCPU,
		RequestedMemory:   reqMem,
	}
	if allocCPU > 0 && reqCPU > 0 {
		f := (allocCPU - reqCPU) / allocCPU
		if f < 0 {
			f = 0
		}
		n.CPUFragmentation = &f
	}
	if allocMem > 0 && reqMem > 0 {
		f := (allocMem - reqMem) / allocMem
		if f < 0 {
			f = 0
		}
		n.MemoryFragmentation = &f
	}
	return n
}

func fragPod(name string, cpuReq, memReq float64) profile.PodProfile {
	return profile.PodProfile{
		Identity: profile.Identity{
			Namespace: "default",
			Pod:       name,
			OwnerKind: "Deployment",
			OwnerName: name,
		},
		Requests: profile.Resources{CPU: fp(cpuReq), Memory: fp(memReq)},
	}
}

func TestAttributeFragmentationBelowThresholdIsNil(t *testing.T) {
	cfg := config.Default()

	// 70% requested on both dimensions: 30% fragmentation, under 0.5.
	node := fragNode("a", 8, 32*gib, 5.6, 22.4*gib)
	assert.Nil(t, AttributeFragmentation(node, nil, []profile.NodeProfile{node}, cfg))
}

func TestAttributeFragmentationUndefinedRatiosAreNil(t *testing.T) {
	cfg := config.Default()

	// No requests recorded: both ratios nil, never treated as fragmented.
	node := profile.NodeProfile{Name: "a", AllocatableCPU: 8, AllocatableMemory: 32 * gib}
	assert.Nil(t, AttributeFragmentation(node, nil, []profile.NodeProfile{node}, cfg))
}

func TestAttributeFragmentationSingleDimensionTrips(t *testing.T) {
	cfg := config.Default()

	// CPU 75% free, memory 90% requested: CPU alone trips the gate.
	node := fragNode("a", 8, 32*gib, 2.0, 28.8*gib)
	attr := AttributeFragmentation(node, nil, []profile.NodeProfile{node}, cfg)
	require.NotNil(t, attr)
	assert.Equal(t, "a", attr.Node)
}

func TestLargeRequestPodDetection(t *testing.T) {
	cfg := config.Default()

	node := fragNode("a", 8, 32*gib, 3.0, 10*gib)
	other := fragNode("b", 8, 32*gib, 1.0, 4*gib) // free: 7 CPU, 28Gi

	pods := []profile.PodProfile{
		fragPod("big-cpu", 2.5, 1*gib),  // 31% of CPU allocatable
		fragPod("big-mem", 0.2, 9*gib),  // 28% of memory allocatable
		fragPod("small", 0.1, 256*mib),  // below both thresholds
		fragPod("giant", 7.5, 30*gib),   // exceeds both, cannot fit on b
	}

	attr := AttributeFragmentation(node, pods, []profile.NodeProfile{node, other}, cfg)
	require.NotNil(t, attr)
	require.Len(t, attr.LargeRequestPods, 3)

	// Sorted by pod name.
	assert.Equal(t, "big-cpu", attr.LargeRequestPods[0].Pod)
	assert.Equal(t, "big-mem", attr.LargeRequestPods[1].Pod)
	assert.Equal(t, "giant", attr.LargeRequestPods[2].Pod)

	assert.True(t, attr.LargeRequestPods[0].CanFitElsewhere)
	assert.True(t, attr.LargeRequestPods[1].CanFitElsewhere)

	giant := attr.LargeRequestPods[2]
	assert.False(t, giant.CanFitElsewhere)
	assert.Contains(t, giant.Reason, "Cannot fit on any other node")
}

func TestLargeRequestPodFitChecksBothResources(t *testing.T) {
	cfg := config.Default()

	node := fragNode("a", 8, 32*gib, 3.0, 10*gib)
	// CPU fits (6 free) but memory does not (2Gi free).
	other := fragNode("b", 8, 32*gib, 2.0, 30*gib)

	pods := []profile.PodProfile{fragPod("wide", 3.0, 8*gib)}

	attr := AttributeFragmentation(node, pods, []profile.NodeProfile{node, other}, cfg)
	require.NotNil(t, attr)
	require.Len(t, attr.LargeRequestPods, 1)
	assert.False(t, attr.LargeRequestPods[0].CanFitElsewhere)
}

func TestConstraintBlockersFromLabels(t *testing.T) {
	cfg := config.Default()

	node := fragNode("a", 8, 32*gib, 2.0, 8*gib)

	spread := fragPod("spread", 0.1, 256*mib)
	spread.Labels = map[string]string{"topology.kubernetes.io/zone": "us-east-1a"}

	zoned := fragPod("zoned", 0.1, 256*mib)
	zoned.Labels = map[string]string{"app.zone": "edge"}

	plain := fragPod("plain", 0.1, 256*mib)
	plain.Labels = map[string]string{"app": "web"}

	opaque := fragPod("opaque", 0.1, 256*mib)
	opaque.Labels = nil

	pods := []profile.PodProfile{spread, zoned, plain, opaque}
	attr := AttributeFragmentation(node, pods, []profile.NodeProfile{node}, cfg)
	require.NotNil(t, attr)

	byPod := map[string]ConstraintRecord{}
	for _, r := range attr.ConstraintBlockers {
		byPod[r.Pod] = r
	}

	// Pods with no detectable constraint and readable labels are omitted.
	_, ok := byPod["plain"]
	assert.False(t, ok)

	rec, ok := byPod["opaque"]
	require.True(t, ok)
	assert.Equal(t, "unknown", rec.Visibility)
	assert.Empty(t, rec.Constraints)

	rec, ok = byPod["spread"]
	require.True(t, ok)
	assert.Equal(t, "limited", rec.Visibility)
	// The zone label key also contains "zone": both hints fire once each.
	require.Len(t, rec.Constraints, 2)
	assert.Equal(t, "topologySpreadConstraints", rec.Constraints[0].Type)
	assert.Equal(t, "zoneAffinity", rec.Constraints[1].Type)

	rec, ok = byPod["zoned"]
	require.True(t, ok)
	require.Len(t, rec.Constraints, 1)
	assert.Equal(t, "zoneAffinity", rec.Constraints[0].Type)
}

func TestDaemonSetOverhead(t *testing.T) {
	cfg := config.Default()

	node := fragNode("a", 4, 16*gib, 1.0, 4*gib)

	agent := fragPod("agent-x1", 0.3, 512*mib)
	agent.Identity.OwnerKind = "DaemonSet"
	agent.Identity.OwnerName = "agent"

	logger := fragPod("logger-x1", 0.2, 256*mib)
	logger.Identity.OwnerKind = "DaemonSet"
	logger.Identity.OwnerName = "logger"

	app := fragPod("app", 0.5, 1*gib)

	pods := []profile.PodProfile{app, logger, agent}
	attr := AttributeFragmentation(node, pods, []profile.NodeProfile{node}, cfg)
	require.NotNil(t, attr)

	oh := attr.DaemonSetOverhead
	// 0.5 of 4 cores = 12.5%, over the 10% bar.
	assert.InDelta(t, 12.5, oh.CPUPercent, 0.01)
	assert.InDelta(t, 4.69, oh.MemoryPercent, 0.01)
	assert.True(t, oh.ExceedsThreshold)
	assert.Equal(t, []string{"agent", "logger"}, oh.Contributing)
}

func TestDaemonSetOverheadUnderThreshold(t *testing.T) {
	cfg := config.Default()

	node := fragNode("a", 8, 32*gib, 1.0, 4*gib)

	agent := fragPod("agent-x1", 0.1, 128*mib)
	agent.Identity.OwnerKind = "DaemonSet"
	agent.Identity.OwnerName = "agent"

	attr := AttributeFragmentation(node, []profile.PodProfile{agent}, []profile.NodeProfile{node}, cfg)
	require.NotNil(t, attr)
	assert.False(t, attr.DaemonSetOverhead.ExceedsThreshold)
	assert.Empty(t, attr.DaemonSetOverhead.Contributing)
}

func TestScaleDownBlockers(t *testing.T) {
	cfg := config.Default()

	node := fragNode("a", 8, 32*gib, 3.0, 8*gib)
	other := fragNode("b", 8, 32*gib, 6.0, 28*gib) // free: 2 CPU, 4Gi

	movable := fragPod("movable", 0.5, 1*gib)

	pinned := fragPod("pinned", 0.5, 1*gib)
	zero := 0
	pinned.DisruptionsAllowed = &zero

	stuck := fragPod("stuck", 3.0, 8*gib) // exceeds b's free block

	pods := []profile.PodProfile{movable, pinned, stuck}
	attr := AttributeFragmentation(node, pods, []profile.NodeProfile{node, other}, cfg)
	require.NotNil(t, attr)
	require.Len(t, attr.ScaleDownBlockers, 2)

	// Largest request first.
	assert.Equal(t, "stuck", attr.ScaleDownBlockers[0].Pod)
	assert.Contains(t, attr.ScaleDownBlockers[0].Reason, "cannot fit on any other node")

	assert.Equal(t, "pinned", attr.ScaleDownBlockers[1].Pod)
	assert.Contains(t, attr.ScaleDownBlockers[1].Reason, "PodDisruptionBudget")
}

func TestScaleDownBlockersCapped(t *testing.T) {
	cfg := config.Default()

	node := fragNode("a", 64, 256*gib, 20.0, 64*gib)

	// Every pod is PDB-pinned; more than the cap.
	var pods []profile.PodProfile
	zero := 0
	for i := 0; i < 15; i++ {
		p := fragPod(fmt.Sprintf("pinned-%02d", i), 0.5, 1*gib)
		p.DisruptionsAllowed = &zero
		pods = append(pods, p)
	}

	attr := AttributeFragmentation(node, pods, []profile.NodeProfile{node}, cfg)
	require.NotNil(t, attr)
	assert.Len(t, attr.ScaleDownBlockers, cfg.Fragmentation.MaxBlockers)
}

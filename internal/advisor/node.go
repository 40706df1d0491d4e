package advisor

import (
	"fmt"
	"math"

	"github.com/kubefit/kubefit/internal/config"
	"github.com/kubefit/kubefit/internal/profile"
)

// ClusterDemand is the aggregate post-resize resource demand: for each
// workload the recommended request when a resize exists, otherwise the
// current request, otherwise observed p99 usage.
type ClusterDemand struct {
	CPU    float64
	Memory float64
	Pods   int
}

// PostResizeDemand folds pod profiles and their resize recommendations
// into cluster demand.
func PostResizeDemand(pods []profile.PodProfile, resizes []Recommendation) ClusterDemand {
	recommended := make(map[string]*PodResizeDetail, len(resizes))
	for i := range resizes {
		if resizes[i].Type == KindPodResize && resizes[i].PodResize != nil {
			d := resizes[i].PodResize
			recommended[d.Namespace+"/"+d.Pod] = d
		}
	}

	var demand ClusterDemand
	for _, p := range pods {
		demand.Pods++
		key := p.Identity.Namespace + "/" + p.Identity.Pod

		if d, ok := recommended[key]; ok {
			demand.CPU += deref(d.Recommended.CPURequest)
			demand.Memory += deref(d.Recommended.MemoryRequest)
			continue
		}
		switch {
		case p.Requests.CPU != nil:
			demand.CPU += *p.Requests.CPU
		case p.CPU != nil:
			demand.CPU += p.CPU.P99
		}
		switch {
		case p.Requests.Memory != nil:
			demand.Memory += *p.Requests.Memory
		case p.Memory != nil:
			demand.Memory += p.Memory.P99
		}
	}
	return demand
}

// RecommendNodeRightsize produces the single cluster-scoped capacity
// recommendation, or nil when the cluster is balanced.
func RecommendNodeRightsize(nodes []profile.NodeProfile, demand ClusterDemand, cfg config.Config) *Recommendation {
	if len(nodes) == 0 {
		return nil
	}

	var allocCPU, allocMem float64
	var usageCPU, usageMem float64
	var usageAllocCPU, usageAllocMem float64
	for _, n := range nodes {
		allocCPU += n.AllocatableCPU
		allocMem += n.AllocatableMemory
		if n.UsageCPUP95 != nil {
			usageCPU += *n.UsageCPUP95
			usageAllocCPU += n.AllocatableCPU
		}
		if n.UsageMemoryP95 != nil {
			usageMem += *n.UsageMemoryP95
			usageAllocMem += n.AllocatableMemory
		}
	}
	if allocCPU <= 0 || allocMem <= 0 {
		return nil
	}

	cpuPressure := demand.CPU / allocCPU
	memPressure := demand.Memory / allocMem

	// Utilization from observed node usage; pressure stands in for nodes
	// whose usage series never arrived.
	cpuUtil := cpuPressure
	if usageAllocCPU > 0 {
		cpuUtil = usageCPU / usageAllocCPU
	}
	memUtil := memPressure
	if usageAllocMem > 0 {
		memUtil = usageMem / usageAllocMem
	}

	efficiency := 0.5*cpuUtil + 0.5*memUtil

	nodeCount := len(nodes)
	avgNodeCPU := allocCPU / float64(nodeCount)
	avgNodeMem := allocMem / float64(nodeCount)

	required := requiredNodes(demand, avgNodeCPU, avgNodeMem, cfg.Node.UsableCapacityFactor)

	shapeDelta := math.Abs(cpuPressure - memPressure)
	imbalanced := shapeDelta > cfg.Node.ShapeImbalanceThreshold
	bias := ""
	if imbalanced {
		bias = "memory_heavy"
		if cpuPressure > memPressure {
			bias = "cpu_heavy"
		}
	}

	detail := &NodeRightsizeDetail{
		CurrentNodeCount:     nodeCount,
		RequiredNodes:        required,
		CPUUtilizationPct:    round1(cpuUtil * 100),
		MemoryUtilizationPct: round1(memUtil * 100),
		CPUPressure:          round4(cpuPressure),
		MemoryPressure:       round4(memPressure),
		NodeEfficiency:       round4(efficiency),
		ShapeImbalance:       imbalanced,
		ShapeBias:            bias,
	}

	cpuHigh := cpuUtil*100 > cfg.Node.CPUHighPct
	memHigh := memUtil*100 > cfg.Node.MemoryHighPct
	cpuLow := cpuUtil*100 < cfg.Node.CPULowPct
	memLow := memUtil*100 < cfg.Node.MemoryLowPct

	var confidence ConfidenceLevel
	var risk RiskLevel

	switch {
	case cpuHigh || memHigh:
		detail.Direction = DirectionScaleUp
		risk = RiskHigh
		confidence = ConfidenceMedium
		if cpuHigh && memHigh {
			confidence = ConfidenceHigh
		}
		detail.Explanation = fmt.Sprintf(
			"Cluster is running hot: CPU at %.1f%%, memory at %.1f%% of allocatable across %d nodes. Add capacity before headroom runs out.",
			detail.CPUUtilizationPct, detail.MemoryUtilizationPct, nodeCount)

	case cpuLow && memLow:
		detail.Direction = DirectionScaleDown
		risk = RiskLow
		switch {
		case required < nodeCount:
			detail.Strategy = StrategyConsolidate
			confidence = ConfidenceHigh
			detail.Explanation = fmt.Sprintf(
				"Post-resize demand fits on %d of %d nodes at a %.0f%% usable-capacity factor. Consolidate and drain the remainder.",
				required, nodeCount, cfg.Node.UsableCapacityFactor*100)
		case smallerNodesViable(efficiency, demand, avgNodeCPU, avgNodeMem, cfg.Node):
			detail.Strategy = StrategySmallerNodes
			confidence = ConfidenceMedium
			detail.Explanation = fmt.Sprintf(
				"Blended efficiency is %.1f%% and the average workload is small relative to node shape. Smaller nodes would pack tighter.",
				efficiency*100)
		default:
			detail.Strategy = StrategyUnderused
			confidence = ConfidenceMedium
			detail.Explanation = fmt.Sprintf(
				"CPU at %.1f%% and memory at %.1f%% of allocatable. The cluster is underused but demand does not yet release a whole node.",
				detail.CPUUtilizationPct, detail.MemoryUtilizationPct)
		}

	case imbalanced:
		detail.Direction = DirectionRightSize
		risk = RiskMedium
		confidence = ConfidenceMedium
		detail.Explanation = fmt.Sprintf(
			"Resource shape is %s: CPU pressure %.2f vs memory pressure %.2f. A different node shape would fit demand better.",
			bias, cpuPressure, memPressure)

	default:
		return nil
	}

	// Node-level actions are operator decisions; they never pass the
	// automated resize gate.
	return &Recommendation{
		Type:          KindNodeRightsize,
		NodeRightsize: detail,
		Safety: Safety{
			Risk:         risk,
			Confidence:   confidence,
			SafeToResize: GateUnsafe,
		},
	}
}

// requiredNodes is the larger of the per-resource node counts demand
// needs, with capacity discounted by the usable factor. Never below 1.
func requiredNodes(demand ClusterDemand, avgNodeCPU, avgNodeMem, usableFactor float64) int {
	byCPU := 1
	if avgNodeCPU > 0 {
		byCPU = int(math.Ceil(demand.CPU / (avgNodeCPU * usableFactor)))
	}
	byMem := 1
	if avgNodeMem > 0 {
		byMem = int(math.Ceil(demand.Memory / (avgNodeMem * usableFactor)))
	}
	required := byCPU
	if byMem > required {
		required = byMem
	}
	if required < 1 {
		required = 1
	}
	return required
}

// smallerNodesViable holds when the cluster is at most moderately used and
// the average workload is small enough that many fit per node on both
// dimensions.
func smallerNodesViable(efficiency float64, demand ClusterDemand, avgNodeCPU, avgNodeMem float64, t config.NodeThresholds) bool {
	if efficiency >= t.ModeratelyOversizedEfficiency || demand.Pods == 0 {
		return false
	}
	avgPodCPU := demand.CPU / float64(demand.Pods)
	avgPodMem := demand.Memory / float64(demand.Pods)
	if avgPodCPU <= 0 || avgPodMem <= 0 {
		return false
	}
	podsByCPU := int(avgNodeCPU * t.UsableCapacityFactor / avgPodCPU)
	podsByMem := int(avgNodeMem * t.UsableCapacityFactor / avgPodMem)
	return podsByCPU > t.MinPodsPerNode && podsByMem > t.MinPodsPerNode
}

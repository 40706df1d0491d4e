package advisor

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kubefit/kubefit/internal/config"
	"github.com/kubefit/kubefit/internal/profile"
)

// Attribution explains what is keeping a fragmented node fragmented. It is
// facts only; no recommendation is attached.
type Attribution struct {
	Node string `json:"node"`

	LargeRequestPods   []LargeRequestPod  `json:"large_request_pods"`
	ConstraintBlockers []ConstraintRecord `json:"constraint_blockers"`
	DaemonSetOverhead  DaemonSetOverhead  `json:"daemonset_overhead"`
	ScaleDownBlockers  []ScaleDownBlocker `json:"scale_down_blockers"`
}

// LargeRequestPod is a pod whose requests dominate the node.
type LargeRequestPod struct {
	Pod           string  `json:"pod_name"`
	Namespace     string  `json:"namespace"`
	WorkloadKind  string  `json:"workload_kind"`
	WorkloadName  string  `json:"workload_name"`
	RequestCPU    float64 `json:"request_cpu"`
	RequestMemory float64 `json:"request_memory"`

	// CanFitElsewhere is true iff some other node's free block covers
	// both the CPU and the memory request.
	CanFitElsewhere bool   `json:"can_fit_elsewhere"`
	Reason          string `json:"reason"`
}

// Constraint is one detected placement restriction.
type Constraint struct {
	Type    string `json:"constraint_type"`
	Summary string `json:"constraint_summary"`
}

// ConstraintRecord ties detected (or undeterminable) constraints to a pod.
// Visibility is "unknown" when constraints could not be read; it is never
// guessed.
type ConstraintRecord struct {
	Pod          string `json:"pod_name"`
	Namespace    string `json:"namespace"`
	WorkloadKind string `json:"workload_kind"`
	WorkloadName string `json:"workload_name"`

	Constraints []Constraint `json:"constraints"`
	Visibility  string       `json:"constraint_visibility"`
}

// DaemonSetOverhead is the share of allocatable consumed by daemonsets.
type DaemonSetOverhead struct {
	CPUPercent       float64  `json:"cpu_percent"`
	MemoryPercent    float64  `json:"memory_percent"`
	ExceedsThreshold bool     `json:"exceeds_threshold"`
	Contributing     []string `json:"contributing_daemonsets"`
}

// ScaleDownBlocker is a pod that would prevent draining the node.
type ScaleDownBlocker struct {
	Pod           string  `json:"pod_name"`
	Namespace     string  `json:"namespace"`
	WorkloadKind  string  `json:"workload_kind"`
	WorkloadName  string  `json:"workload_name"`
	RequestCPU    float64 `json:"request_cpu"`
	RequestMemory float64 `json:"request_memory"`
	Reason        string  `json:"blocking_reason"`
}

type freeBlock struct {
	cpu float64
	mem float64
}

// AttributeFragmentation runs the attribution pass for one node. Returns
// nil when the node is not fragmented enough to warrant it. Must only be
// called once every node profile is complete; fit checks compare against
// the whole pool.
func AttributeFragmentation(node profile.NodeProfile, podsOnNode []profile.PodProfile, allNodes []profile.NodeProfile, cfg config.Config) *Attribution {
	if !fragmented(node, cfg.Fragmentation.Threshold) {
		return nil
	}

	free := otherNodeFreeBlocks(node.Name, allNodes)

	return &Attribution{
		Node:               node.Name,
		LargeRequestPods:   largeRequestPods(node, podsOnNode, free, cfg),
		ConstraintBlockers: constraintBlockers(podsOnNode, cfg.Fragmentation.MaxBlockers),
		DaemonSetOverhead:  daemonSetOverhead(node, podsOnNode, cfg),
		ScaleDownBlockers:  scaleDownBlockers(podsOnNode, free, cfg.Fragmentation.MaxBlockers),
	}
}

func fragmented(node profile.NodeProfile, threshold float64) bool {
	if node.CPUFragmentation != nil && *node.CPUFragmentation >= threshold {
		return true
	}
	if node.MemoryFragmentation != nil && *node.MemoryFragmentation >= threshold {
		return true
	}
	return false
}

func otherNodeFreeBlocks(name string, allNodes []profile.NodeProfile) []freeBlock {
	free := make([]freeBlock, 0, len(allNodes))
	for _, n := range allNodes {
		if n.Name == name {
			continue
		}
		free = append(free, freeBlock{
			cpu: n.AllocatableCPU - n.RequestedCPU,
			mem: n.AllocatableMemory - n.RequestedMemory,
		})
	}
	return free
}

func largeRequestPods(node profile.NodeProfile, pods []profile.PodProfile, free []freeBlock, cfg config.Config) []LargeRequestPod {
	cpuThreshold := node.AllocatableCPU * cfg.Fragmentation.LargePodRequestFraction
	memThreshold := node.AllocatableMemory * cfg.Fragmentation.LargePodRequestFraction

	var maxFree freeBlock
	for _, f := range free {
		if f.cpu > maxFree.cpu {
			maxFree.cpu = f.cpu
		}
		if f.mem > maxFree.mem {
			maxFree.mem = f.mem
		}
	}

	pct := cfg.Fragmentation.LargePodRequestFraction * 100

	var out []LargeRequestPod
	for _, p := range pods {
		cpuReq := deref(p.Requests.CPU)
		memReq := deref(p.Requests.Memory)

		largeCPU := cpuThreshold > 0 && cpuReq > cpuThreshold
		largeMem := memThreshold > 0 && memReq > memThreshold
		if !largeCPU && !largeMem {
			continue
		}

		canFit := cpuReq <= maxFree.cpu && memReq <= maxFree.mem

		var reasons []string
		if largeCPU {
			reasons = append(reasons, fmt.Sprintf("CPU request %.3f cores exceeds %.0f%% of node allocatable", cpuReq, pct))
		}
		if largeMem {
			reasons = append(reasons, fmt.Sprintf("Memory request %.2fGiB exceeds %.0f%% of node allocatable", memReq/(1<<30), pct))
		}
		if !canFit {
			reasons = append(reasons, fmt.Sprintf("Cannot fit on any other node (max free CPU: %.3f, max free memory: %.2fGiB)", maxFree.cpu, maxFree.mem/(1<<30)))
		}

		out = append(out, LargeRequestPod{
			Pod:             p.Identity.Pod,
			Namespace:       p.Identity.Namespace,
			WorkloadKind:    p.Identity.OwnerKind,
			WorkloadName:    p.Identity.OwnerName,
			RequestCPU:      cpuReq,
			RequestMemory:   memReq,
			CanFitElsewhere: canFit,
			Reason:          strings.Join(reasons, "; "),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Pod < out[j].Pod })
	return out
}

// constraintHints maps label-key substrings to the constraint they imply.
var constraintHints = []struct {
	substr  string
	ctype   string
	summary string
}{
	{"topology", "topologySpreadConstraints", "Topology spread constraint detected via labels"},
	{"zone", "zoneAffinity", "Zone/region constraint detected via labels"},
	{"region", "zoneAffinity", "Zone/region constraint detected via labels"},
}

func constraintBlockers(pods []profile.PodProfile, max int) []ConstraintRecord {
	var out []ConstraintRecord
	for _, p := range pods {
		rec := ConstraintRecord{
			Pod:          p.Identity.Pod,
			Namespace:    p.Identity.Namespace,
			WorkloadKind: p.Identity.OwnerKind,
			WorkloadName: p.Identity.OwnerName,
			Visibility:   "limited",
		}

		if len(p.Labels) == 0 {
			rec.Visibility = "unknown"
			out = append(out, rec)
			continue
		}

		seen := map[string]bool{}
		for key := range p.Labels {
			lower := strings.ToLower(key)
			for _, hint := range constraintHints {
				if strings.Contains(lower, hint.substr) && !seen[hint.ctype] {
					seen[hint.ctype] = true
					rec.Constraints = append(rec.Constraints, Constraint{Type: hint.ctype, Summary: hint.summary})
				}
			}
		}

		if len(rec.Constraints) > 0 {
			sort.Slice(rec.Constraints, func(i, j int) bool { return rec.Constraints[i].Type < rec.Constraints[j].Type })
			out = append(out, rec)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Pod < out[j].Pod })
	if len(out) > max {
		out = out[:max]
	}
	return out
}

func daemonSetOverhead(node profile.NodeProfile, pods []profile.PodProfile, cfg config.Config) DaemonSetOverhead {
	var result DaemonSetOverhead
	result.Contributing = []string{}
	if node.AllocatableCPU == 0 && node.AllocatableMemory == 0 {
		return result
	}

	var totalCPU, totalMem float64
	names := map[string]bool{}
	for _, p := range pods {
		if p.Identity.OwnerKind != "DaemonSet" {
			continue
		}
		totalCPU += deref(p.Requests.CPU)
		totalMem += deref(p.Requests.Memory)
		names[p.Identity.OwnerName] = true
	}

	if node.AllocatableCPU > 0 {
		result.CPUPercent = round2(totalCPU / node.AllocatableCPU * 100)
	}
	if node.AllocatableMemory > 0 {
		result.MemoryPercent = round2(totalMem / node.AllocatableMemory * 100)
	}

	result.ExceedsThreshold = result.CPUPercent > cfg.Fragmentation.DaemonSetOverheadPct ||
		result.MemoryPercent > cfg.Fragmentation.DaemonSetOverheadPct
	if result.ExceedsThreshold {
		for name := range names {
			result.Contributing = append(result.Contributing, name)
		}
		sort.Strings(result.Contributing)
	}
	return result
}

func scaleDownBlockers(pods []profile.PodProfile, free []freeBlock, max int) []ScaleDownBlocker {
	var out []ScaleDownBlocker
	for _, p := range pods {
		cpuReq := deref(p.Requests.CPU)
		memReq := deref(p.Requests.Memory)

		canFit := false
		for _, f := range free {
			if cpuReq <= f.cpu && memReq <= f.mem {
				canFit = true
				break
			}
		}

		var reasons []string
		if !canFit {
			reasons = append(reasons, fmt.Sprintf("Pod requests (CPU: %.3f, Memory: %.2fGiB) cannot fit on any other node", cpuReq, memReq/(1<<30)))
		}
		if p.DisruptionsAllowed != nil && *p.DisruptionsAllowed == 0 {
			reasons = append(reasons, "Protected by a PodDisruptionBudget with 0 disruptions allowed")
		}
		if len(reasons) == 0 {
			continue
		}

		out = append(out, ScaleDownBlocker{
			Pod:           p.Identity.Pod,
			Namespace:     p.Identity.Namespace,
			WorkloadKind:  p.Identity.OwnerKind,
			WorkloadName:  p.Identity.OwnerName,
			RequestCPU:    cpuReq,
			RequestMemory: memReq,
			Reason:        strings.Join(reasons, "; "),
		})
	}

	// Largest requests first; ties broken by name for stable output.
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestCPU != out[j].RequestCPU {
			return out[i].RequestCPU > out[j].RequestCPU
		}
		if out[i].RequestMemory != out[j].RequestMemory {
			return out[i].RequestMemory > out[j].RequestMemory
		}
		return out[i].Pod < out[j].Pod
	})
	if len(out) > max {
		out = out[:max]
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

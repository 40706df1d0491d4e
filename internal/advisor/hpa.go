package advisor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kubefit/kubefit/internal/config"
	"github.com/kubefit/kubefit/internal/profile"
)

// HPAPodMatchingLimitation explains the heuristic used to tie autoscalers
// to pods. It is surfaced in the report whenever HPA findings exist.
const HPAPodMatchingLimitation = "HPA to pod mapping is heuristic and depends on naming conventions. " +
	"Pods are matched if the HPA target name is a substring of the pod name."

// HPAInfo is the autoscaler spec the detector inspects.
type HPAInfo struct {
	Namespace string
	Name      string

	TargetKind string
	TargetName string

	MinReplicas     int32
	MaxReplicas     int32
	CurrentReplicas int32

	// ScalesOnCPU is true when the HPA has a CPU utilization metric.
	ScalesOnCPU bool
}

// DetectHPAMisalignment checks every autoscaler against the observed
// behavior of its matched pods. One recommendation is emitted per rule an
// HPA trips. Autoscalers with no matched pods are skipped.
func DetectHPAMisalignment(hpas []HPAInfo, pods []profile.PodProfile, cfg config.Config) []Recommendation {
	var out []Recommendation

	for _, hpa := range hpas {
		matched := matchPods(hpa, pods)
		if len(matched) == 0 {
			continue
		}

		cpuUsage, cpuRequest := averages(matched, func(p profile.PodProfile) (float64, bool) {
			if p.CPU == nil {
				return 0, false
			}
			return p.CPU.P95, true
		}, func(p profile.PodProfile) *float64 { return p.Requests.CPU })

		memUsage, memRequest := averages(matched, func(p profile.PodProfile) (float64, bool) {
			if p.Memory == nil {
				return 0, false
			}
			return p.Memory.P95, true
		}, func(p profile.PodProfile) *float64 { return p.Requests.Memory })

		var cpuRatio, memRatio *float64
		if cpuRequest > 0 {
			r := cpuUsage / cpuRequest
			cpuRatio = &r
		}
		if memRequest > 0 {
			r := memUsage / memRequest
			memRatio = &r
		}

		safety := hpaSafety(matched)

		if hpa.ScalesOnCPU && cpuRatio != nil && *cpuRatio < cfg.HPA.CPULowRatio {
			out = append(out, hpaFinding(hpa, HPARuleLowUtilization, cpuRatio, memRatio, safety,
				fmt.Sprintf("CPU-based HPA with low CPU usage (%.3f cores vs %.3f request)", cpuUsage, cpuRequest)))
		}

		if hpa.ScalesOnCPU && cpuRatio != nil && memRatio != nil &&
			*memRatio > cfg.HPA.MemoryHighRatio && *cpuRatio < cfg.HPA.CPULowRatio {
			out = append(out, hpaFinding(hpa, HPARuleWrongMetric, cpuRatio, memRatio, safety,
				fmt.Sprintf("Memory-bound workload (memory %.1f%% of request) but HPA scales on CPU (%.1f%% of request)",
					*memRatio*100, *cpuRatio*100)))
		}

		if hpa.MinReplicas > int32(cfg.HPA.MinReplicaFloor) && hpa.CurrentReplicas == hpa.MinReplicas &&
			cpuRatio != nil && *cpuRatio < cfg.HPA.FloorUtilRatio {
			out = append(out, hpaFinding(hpa, HPARuleFloorTooHigh, cpuRatio, memRatio, safety,
				fmt.Sprintf("High minReplicas (%d) blocking consolidation with low utilization (%.1f%%)",
					hpa.MinReplicas, *cpuRatio*100)))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SortKey() < out[j].SortKey() })
	return out
}

func matchPods(hpa HPAInfo, pods []profile.PodProfile) []profile.PodProfile {
	if hpa.TargetName == "" {
		return nil
	}
	var matched []profile.PodProfile
	for _, p := range pods {
		if p.Identity.Namespace == hpa.Namespace && strings.Contains(p.Identity.Pod, hpa.TargetName) {
			matched = append(matched, p)
		}
	}
	return matched
}

// averages returns the mean observed usage and mean request across the
// matched pods. Pods without stats contribute zero usage, matching how
// absent series are treated elsewhere.
func averages(pods []profile.PodProfile, usage func(profile.PodProfile) (float64, bool), request func(profile.PodProfile) *float64) (float64, float64) {
	var usageSum, requestSum float64
	for _, p := range pods {
		if v, ok := usage(p); ok {
			usageSum += v
		}
		if r := request(p); r != nil {
			requestSum += *r
		}
	}
	n := float64(len(pods))
	return usageSum / n, requestSum / n
}

// hpaSafety grades HPA findings. Autoscaler changes are operator actions,
// so the resize gate is always closed; confidence drops when any matched
// pod lacks a sufficient observation window.
func hpaSafety(matched []profile.PodProfile) Safety {
	s := Safety{
		Risk:         RiskLow,
		Confidence:   ConfidenceMedium,
		SafeToResize: GateUnsafe,
		Reasons:      []string{HPAPodMatchingLimitation},
	}
	for _, p := range matched {
		if p.InsufficientData {
			s.Confidence = ConfidenceLow
			s.Reasons = append(s.Reasons, "one or more matched pods have an insufficient observation window")
			break
		}
	}
	return s
}

func hpaFinding(hpa HPAInfo, rule HPARule, cpuRatio, memRatio *float64, safety Safety, explanation string) Recommendation {
	return Recommendation{
		Type: KindHPAMisalignment,
		HPAMisalignment: &HPAMisalignmentDetail{
			Namespace:       hpa.Namespace,
			Name:            hpa.Name,
			TargetKind:      hpa.TargetKind,
			TargetName:      hpa.TargetName,
			Rule:            rule,
			MinReplicas:     hpa.MinReplicas,
			MaxReplicas:     hpa.MaxReplicas,
			CurrentReplicas: hpa.CurrentReplicas,
			CPUUtilRatio:    cpuRatio,
			MemoryUtilRatio: memRatio,
			Explanation:     explanation,
		},
		Safety: safety,
	}
}

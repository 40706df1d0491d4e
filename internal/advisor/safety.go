package advisor

import (
	"fmt"

	"github.com/kubefit/kubefit/internal/config"
	"github.com/kubefit/kubefit/internal/profile"
)

// Classify derives the safety gate for one workload. The gate is computed
// from overprovision evidence and data quality only; advisors never relax
// it afterwards.
func Classify(p profile.PodProfile, cfg config.Config) Safety {
	cpu := p.CPUOverprovision
	mem := p.MemoryOverprovision

	var s Safety
	switch {
	case cpu == nil && mem == nil:
		s = Safety{
			Risk:         RiskMedium,
			Confidence:   ConfidenceLow,
			SafeToResize: GateUnsafe,
			Reasons:      []string{"overprovision ratios unavailable for both resources"},
		}

	case exceedsCeiling(cpu, cfg.MaxOverprovisionRatio) || exceedsCeiling(mem, cfg.MaxOverprovisionRatio):
		s = Safety{
			Risk:         RiskHigh,
			Confidence:   ConfidenceMedium,
			SafeToResize: GateUnsafe,
		}
		if exceedsCeiling(cpu, cfg.MaxOverprovisionRatio) {
			s.Reasons = append(s.Reasons, fmt.Sprintf("cpu request is %.1fx observed p95 usage (ceiling %.1fx)", *cpu, cfg.MaxOverprovisionRatio))
		}
		if exceedsCeiling(mem, cfg.MaxOverprovisionRatio) {
			s.Reasons = append(s.Reasons, fmt.Sprintf("memory request is %.1fx observed p95 usage (ceiling %.1fx)", *mem, cfg.MaxOverprovisionRatio))
		}

	case cpu == nil || mem == nil:
		missing := "cpu"
		if mem == nil {
			missing = "memory"
		}
		s = Safety{
			Risk:         RiskMedium,
			Confidence:   ConfidenceLow,
			SafeToResize: GatePartialOnly,
			Reasons:      []string{fmt.Sprintf("%s overprovision ratio unavailable; only the other resource is backed by evidence", missing)},
		}

	default:
		s = Safety{
			Risk:         RiskLow,
			Confidence:   ConfidenceHigh,
			SafeToResize: GateSafe,
		}
	}

	// A short observation window caps confidence and can never be safe.
	if p.InsufficientData {
		s.Confidence = ConfidenceLow
		if s.SafeToResize == GateSafe {
			s.SafeToResize = GateUnsafe
		}
		reason := "observation window below configured minimum"
		if p.Evidence != nil {
			reason = fmt.Sprintf("observation window below minimum: %d samples over %s (need %d over %s)",
				p.Evidence.ObservedSamples, p.Evidence.ObservedSpan, p.Evidence.RequiredSamples, p.Evidence.RequiredWindow)
		}
		s.Reasons = append(s.Reasons, reason)
	}

	return s
}

func exceedsCeiling(ratio *float64, ceiling float64) bool {
	return ratio != nil && *ratio > ceiling
}

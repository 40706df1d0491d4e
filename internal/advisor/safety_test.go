package advisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kubefit/kubefit/internal/config"
	"github.com/kubefit/kubefit/internal/profile"
)

func TestClassifyHealthy(t *testing.T) {
	cfg := config.Default()

	p := profile.PodProfile{
		CPUOverprovision:    fp(2.0),
		MemoryOverprovision: fp(1.5),
	}

	s := Classify(p, cfg)
	assert.Equal(t, RiskLow, s.Risk)
	assert.Equal(t, ConfidenceHigh, s.Confidence)
	assert.Equal(t, GateSafe, s.SafeToResize)
	assert.Empty(t, s.Reasons)
}

func TestClassifyMissingBothRatios(t *testing.T) {
	s := Classify(profile.PodProfile{}, config.Default())
	assert.Equal(t, RiskMedium, s.Risk)
	assert.Equal(t, ConfidenceLow, s.Confidence)
	assert.Equal(t, GateUnsafe, s.SafeToResize)
}

func TestClassifyPartialEvidence(t *testing.T) {
	cfg := config.Default()

	s := Classify(profile.PodProfile{CPUOverprovision: fp(2.0)}, cfg)
	assert.Equal(t, RiskMedium, s.Risk)
	assert.Equal(t, ConfidenceLow, s.Confidence)
	assert.Equal(t, GatePartialOnly, s.SafeToResize)

	s = Classify(profile.PodProfile{MemoryOverprovision: fp(1.2)}, cfg)
	assert.Equal(t, GatePartialOnly, s.SafeToResize)
}

func TestClassifyOverCeiling(t *testing.T) {
	cfg := config.Default() // ceiling 5.0

	tests := []struct {
		name string
		p    profile.PodProfile
	}{
		{"cpu over ceiling", profile.PodProfile{CPUOverprovision: fp(10.0), MemoryOverprovision: fp(1.2)}},
		{"memory over ceiling", profile.PodProfile{CPUOverprovision: fp(1.2), MemoryOverprovision: fp(6.0)}},
		{"one ratio missing, other over ceiling", profile.PodProfile{CPUOverprovision: fp(10.0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Classify(tt.p, cfg)
			assert.Equal(t, RiskHigh, s.Risk)
			assert.Equal(t, ConfidenceMedium, s.Confidence)
			assert.Equal(t, GateUnsafe, s.SafeToResize)
			assert.NotEmpty(t, s.Reasons)
		})
	}
}

func TestClassifyExactlyAtCeilingIsNotOver(t *testing.T) {
	cfg := config.Default()

	s := Classify(profile.PodProfile{CPUOverprovision: fp(5.0), MemoryOverprovision: fp(1.0)}, cfg)
	assert.Equal(t, RiskLow, s.Risk)
	assert.Equal(t, GateSafe, s.SafeToResize)
}

func TestClassifyInsufficientDataNeverSafe(t *testing.T) {
	cfg := config.Default()

	p := profile.PodProfile{
		CPUOverprovision:    fp(2.0),
		MemoryOverprovision: fp(1.5),
		InsufficientData:    true,
		Evidence: &profile.WindowEvidence{
			ObservedSamples: 3,
			ObservedSpan:    4 * time.Minute,
			RequiredSamples: 5,
			RequiredWindow:  10 * time.Minute,
		},
	}

	s := Classify(p, cfg)
	assert.Equal(t, ConfidenceLow, s.Confidence)
	assert.NotEqual(t, GateSafe, s.SafeToResize)
	assert.NotEmpty(t, s.Reasons)
}

func TestClassifyInsufficientDataKeepsPartialGate(t *testing.T) {
	cfg := config.Default()

	p := profile.PodProfile{
		CPUOverprovision: fp(2.0),
		InsufficientData: true,
	}

	s := Classify(p, cfg)
	// partial_only already forbids an unconditional resize; the short
	// window only caps confidence.
	assert.Equal(t, GatePartialOnly, s.SafeToResize)
	assert.Equal(t, ConfidenceLow, s.Confidence)
}

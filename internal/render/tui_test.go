package render

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubefit/kubefit/internal/report"
)

func TestModelViewShowsPhase(t *testing.T) {
	m := NewModel("prod")
	out := m.View()
	assert.Contains(t, out, "prod")
	assert.Contains(t, out, "Discovering")

	updated, _ := m.Update(PhaseMsg(PhaseCollecting))
	out = updated.View()
	assert.Contains(t, out, "Collecting")

	updated, _ = updated.Update(PhaseMsg(PhaseAnalyzing))
	out = updated.View()
	assert.Contains(t, out, "Analyzing")
}

func TestModelDoneQuits(t *testing.T) {
	m := NewModel("prod")
	rep := report.Report{Summary: report.Summary{TotalRecommendations: 7}}

	updated, cmd := m.Update(DoneMsg{Report: rep})
	require.NotNil(t, cmd, "done must quit the program")

	out := updated.View()
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "7 recommendations")
}

func TestModelDoneWithError(t *testing.T) {
	m := NewModel("prod")
	updated, _ := m.Update(DoneMsg{Err: errors.New("prometheus unreachable")})

	out := updated.View()
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "prometheus unreachable")
}

func TestModelQuitKey(t *testing.T) {
	m := NewModel("prod")
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Contains(t, updated.View(), "cancelled")
}

func TestPhaseStrings(t *testing.T) {
	for _, p := range []Phase{PhaseDiscovering, PhaseCollecting, PhaseAnalyzing, PhaseDone} {
		assert.NotEmpty(t, p.String())
	}
}

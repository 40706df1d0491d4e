package export

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubefit/kubefit/internal/advisor"
	"github.com/kubefit/kubefit/internal/report"
)

func sampleReport() report.Report {
	cur := 2.0
	rec := 0.5
	curMem := 4.0 * (1 << 30)
	recMem := 1.0 * (1 << 30)
	return report.Report{
		Cluster:        "test-cluster",
		Env:            "nonprod",
		Project:        "platform",
		GeneratedAt:    "2026-08-30T10:00:00Z",
		AnalysisWindow: "15m",
		Recommendations: []advisor.Recommendation{
			{
				Type: advisor.KindPodResize,
				PodResize: &advisor.PodResizeDetail{
					Namespace:   "web",
					Pod:         "api-0",
					Current:     advisor.ResourcePair{CPURequest: &cur, MemoryRequest: &curMem},
					Recommended: advisor.ResourcePair{CPURequest: &rec, MemoryRequest: &recMem},
				},
				Safety: advisor.Safety{SafeToResize: advisor.GateSafe},
			},
			{
				Type: advisor.KindHPAMisalignment,
				HPAMisalignment: &advisor.HPAMisalignmentDetail{
					Namespace:       "web",
					Name:            "api-hpa",
					Rule:            advisor.HPARuleLowUtilization,
					MinReplicas:     1,
					MaxReplicas:     10,
					CurrentReplicas: 2,
				},
				Safety: advisor.Safety{SafeToResize: advisor.GateUnsafe},
			},
		},
		Limitations: []string{"example limitation"},
		Summary: report.Summary{
			TotalRecommendations: 2,
			Pods:                 report.EntitySummary{Affected: 1, Total: 3, Text: "1 out of 3 pods need resizing"},
			Nodes:                report.EntitySummary{Text: "No nodes scanned"},
			HPAs:                 report.EntitySummary{Affected: 1, Total: 1, Text: "1 out of 1 HPAs are misaligned"},
			PotentialSavings:     report.SavingsSummary{Text: "Save 1.50 CPU cores; Save 3.0GB memory"},
		},
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Format
	}{
		{"json extension", "output.json", FormatJSON},
		{"markdown extension", "output.md", FormatMarkdown},
		{"markdown full", "output.markdown", FormatMarkdown},
		{"unknown extension", "output.xyz", FormatJSON},
		{"no extension", "output", FormatJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.input))
		})
	}
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	exporter := Exporter{Format: FormatJSON}

	require.NoError(t, exporter.Export(sampleReport(), &buf))

	var decoded report.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "test-cluster", decoded.Cluster)
	assert.Len(t, decoded.Recommendations, 2)
	assert.Equal(t, advisor.KindPodResize, decoded.Recommendations[0].Type)
}

func TestExportMarkdown(t *testing.T) {
	var buf bytes.Buffer
	exporter := Exporter{Format: FormatMarkdown}

	require.NoError(t, exporter.Export(sampleReport(), &buf))

	output := buf.String()
	assert.Contains(t, output, "# Capacity Report: test-cluster")
	assert.Contains(t, output, "## Summary")
	assert.Contains(t, output, "## Pod Resizes")
	assert.Contains(t, output, "| web | api-0 | 2.00 -> 0.50 | 4.0Gi -> 1.0Gi | true |")
	assert.Contains(t, output, "## HPA Misalignments")
	assert.Contains(t, output, "| web | api-hpa | low_utilization | 1/2/10 |")
	assert.Contains(t, output, "## Limitations")
	assert.Contains(t, output, "example limitation")
}

func TestExportMarkdownOmitsEmptySections(t *testing.T) {
	var buf bytes.Buffer
	exporter := Exporter{Format: FormatMarkdown}

	r := sampleReport()
	r.Recommendations = nil
	r.Limitations = nil
	require.NoError(t, exporter.Export(r, &buf))

	output := buf.String()
	assert.NotContains(t, output, "## Pod Resizes")
	assert.NotContains(t, output, "## HPA Misalignments")
	assert.NotContains(t, output, "## Limitations")
}

func TestUnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	exporter := Exporter{Format: Format("yaml")}
	assert.Error(t, exporter.Export(sampleReport(), &buf))
}

func TestWithTimestamp(t *testing.T) {
	ts := time.Date(2026, 8, 30, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, "out-2026-08-30T10-30-00Z.json", WithTimestamp("out.json", ts))
}

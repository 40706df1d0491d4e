// Package report assembles the analysis output document and writes it to
// disk. The document is deterministic for a given engine result and
// timestamp; all slices arrive pre-sorted from the engine.
package report

import (
	"fmt"
	"math"
	"time"

	"github.com/kubefit/kubefit/internal/advisor"
	"github.com/kubefit/kubefit/internal/engine"
	"github.com/kubefit/kubefit/internal/profile"
)

// MemoryPressureLimitation is attached whenever any pod resize exists.
// CPU reductions are sized from the pod's own usage only.
const MemoryPressureLimitation = "CPU reductions do not yet account for node-level memory pressure. " +
	"Manual review recommended before applying CPU reduction on memory-constrained nodes."

// Meta identifies the analyzed cluster and the observation window.
type Meta struct {
	Cluster        string
	Environment    string
	Project        string
	AnalysisWindow string
	GeneratedAt    time.Time

	// TotalHPAs is supplied by the collector; HPAs without findings do
	// not appear in the engine result.
	TotalHPAs int
}

// EntitySummary is the scanned-vs-affected count for one entity kind.
type EntitySummary struct {
	Affected int    `json:"affected"`
	Total    int    `json:"total"`
	Text     string `json:"text"`
}

// SavingsSummary aggregates pod-resize savings across the cluster.
type SavingsSummary struct {
	CPUCores    float64 `json:"cpu_cores"`
	MemoryBytes float64 `json:"memory_bytes"`
	MemoryMB    float64 `json:"memory_mb"`
	MemoryGB    float64 `json:"memory_gb"`
	Text        string  `json:"text"`
}

// Summary is the report roll-up.
type Summary struct {
	TotalRecommendations int            `json:"total_recommendations"`
	Pods                 EntitySummary  `json:"pods"`
	Nodes                EntitySummary  `json:"nodes"`
	HPAs                 EntitySummary  `json:"hpa"`
	PotentialSavings     SavingsSummary `json:"potential_savings"`
}

// Report is the full analysis document.
type Report struct {
	Cluster        string `json:"cluster"`
	Env            string `json:"env"`
	Project        string `json:"project"`
	GeneratedAt    string `json:"generated_at"`
	AnalysisWindow string `json:"analysis_window"`

	PodProfiles  []profile.PodProfile  `json:"pod_profiles"`
	NodeProfiles []profile.NodeProfile `json:"node_profiles"`

	Attributions    []advisor.Attribution    `json:"fragmentation_attributions,omitempty"`
	Recommendations []advisor.Recommendation `json:"recommendations"`

	CollectionErrors []string `json:"collection_errors,omitempty"`
	Limitations      []string `json:"limitations"`

	Summary Summary `json:"summary"`
}

// Build turns an engine result into the output document.
func Build(res engine.Result, meta Meta) Report {
	r := Report{
		Cluster:          meta.Cluster,
		Env:              meta.Environment,
		Project:          meta.Project,
		GeneratedAt:      meta.GeneratedAt.UTC().Format(time.RFC3339),
		AnalysisWindow:   meta.AnalysisWindow,
		PodProfiles:      res.PodProfiles,
		NodeProfiles:     res.NodeProfiles,
		Attributions:     res.Attributions,
		Recommendations:  res.Recommendations,
		CollectionErrors: res.Errors,
		Limitations:      []string{},
	}

	var resizes, nodeRecs int
	var savings SavingsSummary
	hpaSeen := map[string]bool{}
	for _, rec := range res.Recommendations {
		switch rec.Type {
		case advisor.KindPodResize:
			resizes++
			savings.CPUCores += rec.PodResize.Savings.CPUCores
			savings.MemoryBytes += rec.PodResize.Savings.MemoryBytes
		case advisor.KindNodeRightsize:
			nodeRecs++
		case advisor.KindHPAMisalignment:
			// An autoscaler can trip several rules; it is still one
			// affected autoscaler.
			hpaSeen[rec.HPAMisalignment.Namespace+"/"+rec.HPAMisalignment.Name] = true
		}
	}

	if resizes > 0 {
		r.Limitations = append(r.Limitations, MemoryPressureLimitation)
	}
	if len(hpaSeen) > 0 {
		r.Limitations = append(r.Limitations, advisor.HPAPodMatchingLimitation)
	}
	for _, n := range res.NodeProfiles {
		r.Limitations = append(r.Limitations, n.Limitations...)
	}

	savings.CPUCores = round2(savings.CPUCores)
	savings.MemoryMB = round1(savings.MemoryBytes / (1 << 20))
	savings.MemoryGB = round2(savings.MemoryBytes / (1 << 30))
	savings.Text = savingsText(savings)

	r.Summary = Summary{
		TotalRecommendations: len(res.Recommendations),
		Pods:                 entitySummary(resizes, len(res.PodProfiles), "%d out of %d pods need resizing", "No pods scanned"),
		Nodes:                entitySummary(nodeRecs, len(res.NodeProfiles), "%d out of %d nodes show inefficiency", "No nodes scanned"),
		HPAs:                 entitySummary(len(hpaSeen), meta.TotalHPAs, "%d out of %d HPAs are misaligned", "No HPAs scanned"),
		PotentialSavings:     savings,
	}
	return r
}

func entitySummary(affected, total int, format, empty string) EntitySummary {
	s := EntitySummary{Affected: affected, Total: total, Text: empty}
	if total > 0 {
		s.Text = fmt.Sprintf(format, affected, total)
	}
	return s
}

func savingsText(s SavingsSummary) string {
	var parts []string

	switch {
	case s.CPUCores > 0:
		parts = append(parts, fmt.Sprintf("Save %.2f CPU cores", s.CPUCores))
	case s.CPUCores < 0:
		parts = append(parts, fmt.Sprintf("Need %.2f more CPU cores", -s.CPUCores))
	}

	switch {
	case s.MemoryBytes > 0:
		parts = append(parts, fmt.Sprintf("Save %s memory", memoryAmount(s.MemoryGB, s.MemoryMB)))
	case s.MemoryBytes < 0:
		parts = append(parts, fmt.Sprintf("Need %s more memory", memoryAmount(-s.MemoryGB, -s.MemoryMB)))
	}

	if len(parts) == 0 {
		return "No significant changes"
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "; " + p
	}
	return out
}

func memoryAmount(gb, mb float64) string {
	if math.Abs(gb) >= 1 {
		return fmt.Sprintf("%.1fGB", gb)
	}
	return fmt.Sprintf("%.0fMB", mb)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }

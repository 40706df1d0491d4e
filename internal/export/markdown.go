package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/kubefit/kubefit/internal/advisor"
	"github.com/kubefit/kubefit/internal/report"
)

// exportMarkdown renders the report as a readable Markdown document:
// header, summary, one section per recommendation kind, limitations.
func exportMarkdown(r report.Report, w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Capacity Report: %s\n\n", r.Cluster)
	fmt.Fprintf(&b, "- **Environment:** %s\n", r.Env)
	fmt.Fprintf(&b, "- **Project:** %s\n", r.Project)
	fmt.Fprintf(&b, "- **Generated:** %s\n", r.GeneratedAt)
	fmt.Fprintf(&b, "- **Analysis window:** %s\n\n", r.AnalysisWindow)

	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "- %s\n", r.Summary.Pods.Text)
	fmt.Fprintf(&b, "- %s\n", r.Summary.Nodes.Text)
	fmt.Fprintf(&b, "- %s\n", r.Summary.HPAs.Text)
	fmt.Fprintf(&b, "- **Potential savings:** %s\n\n", r.Summary.PotentialSavings.Text)

	writePodResizes(&b, r.Recommendations)
	writeNodeRightsize(&b, r.Recommendations)
	writeHPAFindings(&b, r.Recommendations)

	if len(r.Limitations) > 0 {
		fmt.Fprintf(&b, "## Limitations\n\n")
		for _, l := range r.Limitations {
			fmt.Fprintf(&b, "- %s\n", l)
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writePodResizes(b *strings.Builder, recs []advisor.Recommendation) {
	var rows []*advisor.PodResizeDetail
	gates := map[*advisor.PodResizeDetail]advisor.ResizeGate{}
	for i := range recs {
		if recs[i].Type == advisor.KindPodResize {
			rows = append(rows, recs[i].PodResize)
			gates[recs[i].PodResize] = recs[i].Safety.SafeToResize
		}
	}
	if len(rows) == 0 {
		return
	}

	fmt.Fprintf(b, "## Pod Resizes\n\n")
	fmt.Fprintf(b, "| Namespace | Pod | CPU request | Memory request | Safe |\n")
	fmt.Fprintf(b, "|---|---|---|---|---|\n")
	for _, d := range rows {
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s |\n",
			d.Namespace, d.Pod,
			cpuChange(d.Current.CPURequest, d.Recommended.CPURequest),
			memChange(d.Current.MemoryRequest, d.Recommended.MemoryRequest),
			gates[d])
	}
	b.WriteString("\n")
}

func writeNodeRightsize(b *strings.Builder, recs []advisor.Recommendation) {
	for i := range recs {
		if recs[i].Type != advisor.KindNodeRightsize {
			continue
		}
		d := recs[i].NodeRightsize
		fmt.Fprintf(b, "## Node Rightsizing\n\n")
		fmt.Fprintf(b, "- **Direction:** %s\n", d.Direction)
		if d.Strategy != "" {
			fmt.Fprintf(b, "- **Strategy:** %s\n", d.Strategy)
		}
		fmt.Fprintf(b, "- **Nodes:** %d current, %d required\n", d.CurrentNodeCount, d.RequiredNodes)
		fmt.Fprintf(b, "- **Utilization:** CPU %.1f%%, memory %.1f%%\n", d.CPUUtilizationPct, d.MemoryUtilizationPct)
		fmt.Fprintf(b, "\n%s\n\n", d.Explanation)
	}
}

func writeHPAFindings(b *strings.Builder, recs []advisor.Recommendation) {
	var rows []*advisor.HPAMisalignmentDetail
	for i := range recs {
		if recs[i].Type == advisor.KindHPAMisalignment {
			rows = append(rows, recs[i].HPAMisalignment)
		}
	}
	if len(rows) == 0 {
		return
	}

	fmt.Fprintf(b, "## HPA Misalignments\n\n")
	fmt.Fprintf(b, "| Namespace | HPA | Rule | Replicas (min/cur/max) |\n")
	fmt.Fprintf(b, "|---|---|---|---|\n")
	for _, d := range rows {
		fmt.Fprintf(b, "| %s | %s | %s | %d/%d/%d |\n",
			d.Namespace, d.Name, d.Rule, d.MinReplicas, d.CurrentReplicas, d.MaxReplicas)
	}
	b.WriteString("\n")
}

func cpuChange(current, recommended *float64) string {
	return fmt.Sprintf("%s -> %s", cpuValue(current), cpuValue(recommended))
}

func memChange(current, recommended *float64) string {
	return fmt.Sprintf("%s -> %s", memValue(current), memValue(recommended))
}

func cpuValue(v *float64) string {
	if v == nil {
		return "unset"
	}
	return fmt.Sprintf("%.2f", *v)
}

func memValue(v *float64) string {
	if v == nil {
		return "unset"
	}
	mib := *v / (1 << 20)
	if mib >= 1024 {
		return fmt.Sprintf("%.1fGi", mib/1024)
	}
	return fmt.Sprintf("%.0fMi", mib)
}

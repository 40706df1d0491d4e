// Package render prints analysis reports for terminals: summary header,
// one table per recommendation kind, and an optional live progress TUI.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"

	"github.com/kubefit/kubefit/internal/advisor"
	"github.com/kubefit/kubefit/internal/report"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("46"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// Renderer writes human-oriented report output.
type Renderer struct {
	w io.Writer
}

// New creates a Renderer over a writer.
func New(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// Print writes the full terminal view of a report.
func (r *Renderer) Print(rep report.Report) {
	fmt.Fprintln(r.w, titleStyle.Render("Capacity Report: "+rep.Cluster))
	fmt.Fprintf(r.w, "%s %s\n", labelStyle.Render("Generated:"), rep.GeneratedAt)
	fmt.Fprintf(r.w, "%s %s\n", labelStyle.Render("Window:"), rep.AnalysisWindow)
	fmt.Fprintln(r.w)

	fmt.Fprintf(r.w, "%s %s\n", labelStyle.Render("Pods:"), rep.Summary.Pods.Text)
	fmt.Fprintf(r.w, "%s %s\n", labelStyle.Render("Nodes:"), rep.Summary.Nodes.Text)
	fmt.Fprintf(r.w, "%s %s\n", labelStyle.Render("HPAs:"), rep.Summary.HPAs.Text)
	fmt.Fprintf(r.w, "%s %s\n", labelStyle.Render("Savings:"), rep.Summary.PotentialSavings.Text)
	fmt.Fprintln(r.w)

	r.printPodResizes(rep.Recommendations)
	r.printNodeRightsize(rep.Recommendations)
	r.printHPAFindings(rep.Recommendations)

	if len(rep.Limitations) > 0 {
		fmt.Fprintln(r.w, titleStyle.Render("Limitations"))
		for _, l := range rep.Limitations {
			fmt.Fprintf(r.w, "  - %s\n", dimStyle.Render(l))
		}
		fmt.Fprintln(r.w)
	}

	if len(rep.CollectionErrors) > 0 {
		fmt.Fprintln(r.w, errorStyle.Render("Collection errors"))
		for _, e := range rep.CollectionErrors {
			fmt.Fprintf(r.w, "  - %s\n", e)
		}
		fmt.Fprintln(r.w)
	}
}

func (r *Renderer) printPodResizes(recs []advisor.Recommendation) {
	var rows [][]string
	for _, rec := range recs {
		if rec.Type != advisor.KindPodResize {
			continue
		}
		d := rec.PodResize
		rows = append(rows, []string{
			d.Namespace,
			d.Pod,
			resourceChange(d.Current.CPURequest, d.Recommended.CPURequest, fmtCPU),
			resourceChange(d.Current.MemoryRequest, d.Recommended.MemoryRequest, fmtMem),
			renderGate(rec.Safety.SafeToResize),
			renderRisk(rec.Safety.Risk),
			string(rec.Safety.Confidence),
		})
	}
	if len(rows) == 0 {
		return
	}

	fmt.Fprintln(r.w, titleStyle.Render("Pod resizes"))
	table := tablewriter.NewWriter(r.w)
	table.Header([]string{"Namespace", "Pod", "CPU Request", "Memory Request", "Safe", "Risk", "Confidence"})
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
	fmt.Fprintln(r.w)
}

func (r *Renderer) printNodeRightsize(recs []advisor.Recommendation) {
	for _, rec := range recs {
		if rec.Type != advisor.KindNodeRightsize {
			continue
		}
		d := rec.NodeRightsize

		fmt.Fprintln(r.w, titleStyle.Render("Node rightsizing"))
		fmt.Fprintf(r.w, "%s %s", labelStyle.Render("Direction:"), string(d.Direction))
		if d.Strategy != "" {
			fmt.Fprintf(r.w, " (%s)", d.Strategy)
		}
		fmt.Fprintln(r.w)
		fmt.Fprintf(r.w, "%s %d -> %d\n", labelStyle.Render("Nodes:"), d.CurrentNodeCount, d.RequiredNodes)
		fmt.Fprintf(r.w, "%s cpu %.1f%%, memory %.1f%%\n", labelStyle.Render("Utilization:"), d.CPUUtilizationPct, d.MemoryUtilizationPct)
		if d.ShapeImbalance {
			fmt.Fprintf(r.w, "%s %s\n", labelStyle.Render("Shape:"), warnStyle.Render(d.ShapeBias))
		}
		fmt.Fprintf(r.w, "%s %s\n", labelStyle.Render("Risk:"), renderRisk(rec.Safety.Risk))
		fmt.Fprintln(r.w, dimStyle.Render(d.Explanation))
		fmt.Fprintln(r.w)
	}
}

func (r *Renderer) printHPAFindings(recs []advisor.Recommendation) {
	var rows [][]string
	for _, rec := range recs {
		if rec.Type != advisor.KindHPAMisalignment {
			continue
		}
		d := rec.HPAMisalignment
		rows = append(rows, []string{
			d.Namespace,
			d.Name,
			d.TargetKind + "/" + d.TargetName,
			string(d.Rule),
			fmt.Sprintf("%d/%d/%d", d.MinReplicas, d.CurrentReplicas, d.MaxReplicas),
			renderRisk(rec.Safety.Risk),
		})
	}
	if len(rows) == 0 {
		return
	}

	fmt.Fprintln(r.w, titleStyle.Render("HPA findings"))
	table := tablewriter.NewWriter(r.w)
	table.Header([]string{"Namespace", "HPA", "Target", "Rule", "Min/Cur/Max", "Risk"})
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
	fmt.Fprintln(r.w)
}

func renderRisk(risk advisor.RiskLevel) string {
	switch risk {
	case advisor.RiskHigh:
		return errorStyle.Render("HIGH")
	case advisor.RiskMedium:
		return warnStyle.Render("MEDIUM")
	default:
		return okStyle.Render("LOW")
	}
}

func renderGate(gate advisor.ResizeGate) string {
	switch gate {
	case advisor.GateSafe:
		return okStyle.Render("yes")
	case advisor.GatePartialOnly:
		return warnStyle.Render("partial")
	default:
		return errorStyle.Render("no")
	}
}

func resourceChange(current, recommended *float64, format func(float64) string) string {
	cur := "unset"
	if current != nil {
		cur = format(*current)
	}
	rec := "unset"
	if recommended != nil {
		rec = format(*recommended)
	}
	if cur == rec {
		return cur
	}
	return cur + " -> " + rec
}

// fmtCPU renders cores as millicores.
func fmtCPU(cores float64) string {
	return fmt.Sprintf("%dm", int(cores*1000))
}

// fmtMem renders bytes as Mi, switching to Gi at 1024Mi.
func fmtMem(bytes float64) string {
	mib := bytes / (1024 * 1024)
	if mib >= 1024 {
		return strings.TrimSuffix(fmt.Sprintf("%.1f", mib/1024), ".0") + "Gi"
	}
	return fmt.Sprintf("%.0fMi", mib)
}

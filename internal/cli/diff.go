package cli

import (
	"encoding/json"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/kubefit/kubefit/internal/report"
	"github.com/kubefit/kubefit/internal/util"
)

var diffCmd = &cobra.Command{
	Use:   "diff <before.json> <after.json>",
	Short: "Compare two saved reports",
	Long: `Diff compares two report files after stripping the generation
timestamp, so two runs over identical inputs diff clean. Exits 0 when
the reports match, 1 when they differ.`,
	Args: cobra.ExactArgs(2),
	Run:  runDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) {
	before, err := normalizedReport(args[0])
	if err != nil {
		util.ExitWithError(util.ExitInvalidInput, "Read %s: %v", args[0], err)
	}
	after, err := normalizedReport(args[1])
	if err != nil {
		util.ExitWithError(util.ExitInvalidInput, "Read %s: %v", args[1], err)
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: args[0],
		ToFile:   args[1],
		Context:  3,
	}
	diffText, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		util.ExitWithError(util.ExitRuntimeError, "Generate diff: %v", err)
	}

	if diffText == "" {
		fmt.Println("Reports are identical.")
		return
	}
	fmt.Print(diffText)
	util.Exit(util.ExitPolicyFail)
}

// normalizedReport loads a report and re-marshals it with the generation
// timestamp zeroed, so only substantive fields participate in the diff.
func normalizedReport(path string) (string, error) {
	rep, err := report.Read(path)
	if err != nil {
		return "", err
	}
	rep.GeneratedAt = ""

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

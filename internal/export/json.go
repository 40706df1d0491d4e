package export

import (
	"encoding/json"
	"io"

	"github.com/kubefit/kubefit/internal/report"
)

// exportJSON writes the report as indented JSON. The report is already
// fully ordered, so the output is byte-stable.
func exportJSON(r report.Report, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// Package export renders a finished report to an output file format.
// JSON is the canonical representation; Markdown is a human-readable view.
package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/kubefit/kubefit/internal/report"
)

// Format represents the export format type.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// DetectFormat detects the export format from the file extension.
// JSON is the canonical default for unknown extensions.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return FormatMarkdown
	default:
		return FormatJSON
	}
}

// Exporter writes reports in a fixed format.
type Exporter struct {
	Format Format
}

// Export writes the report to w.
func (e *Exporter) Export(r report.Report, w io.Writer) error {
	switch e.Format {
	case FormatJSON:
		return exportJSON(r, w)
	case FormatMarkdown:
		return exportMarkdown(r, w)
	default:
		return fmt.Errorf("unsupported format: %s", e.Format)
	}
}

// WithTimestamp adds a timestamp suffix to the filename so repeated runs
// do not overwrite each other.
func WithTimestamp(path string, t time.Time) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	timestamp := t.Format("2006-01-02T15-04-05Z")
	return fmt.Sprintf("%s-%s%s", base, timestamp, ext)
}

package metrics

import (
	"fmt"
	"strings"
	"time"
)

// QueryBuilder constructs the PromQL this analysis needs. All label values
// pass through escaping; callers never splice strings into queries.
type QueryBuilder struct{}

// NewQueryBuilder creates a new query builder.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{}
}

// PodCPUUsage returns per-pod CPU usage (cores) for a namespace.
func (qb *QueryBuilder) PodCPUUsage(namespace string) string {
	return `sum(rate(container_cpu_usage_seconds_total{namespace=` + escapeLabel(namespace) + `,container!="",container!="POD"}[5m])) by (pod)`
}

// PodMemoryUsage returns per-pod working-set memory (bytes) for a namespace.
func (qb *QueryBuilder) PodMemoryUsage(namespace string) string {
	return `sum(container_memory_working_set_bytes{namespace=` + escapeLabel(namespace) + `,container!="",container!="POD"}) by (pod)`
}

// NodeCPUUsage returns per-node CPU usage (cores) by joining container
// usage to kube_pod_info for node attribution.
func (qb *QueryBuilder) NodeCPUUsage() string {
	return `sum(rate(container_cpu_usage_seconds_total{container!="",container!="POD"}[5m]) * on(namespace,pod) group_left(node) kube_pod_info) by (node)`
}

// NodeMemoryUsage returns per-node working-set memory (bytes).
func (qb *QueryBuilder) NodeMemoryUsage() string {
	return `sum(container_memory_working_set_bytes{container!="",container!="POD"} * on(namespace,pod) group_left(node) kube_pod_info) by (node)`
}

// HasNamespaceMetrics counts container CPU series for a namespace; zero
// means the namespace is invisible to Prometheus.
func (qb *QueryBuilder) HasNamespaceMetrics(namespace string) string {
	return `count(container_cpu_usage_seconds_total{namespace=` + escapeLabel(namespace) + `,container!="",container!="POD"})`
}

// escapeLabel escapes a string for use in a PromQL label equality matcher (=).
// Escapes backslashes, double quotes, and newlines.
func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return `"` + s + `"`
}

// maxDurationDays is the upper bound for parsed durations (1 year).
const maxDurationDays = 365

// ParseDuration parses a Prometheus-style duration string like "30d",
// "24h", "15m"; plain Go durations are accepted as a fallback.
func ParseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %s", s)
	}

	unit := s[len(s)-1]
	valueStr := s[:len(s)-1]

	var value int
	if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
		return 0, fmt.Errorf("invalid duration value: %s", s)
	}

	if value < 0 {
		return 0, fmt.Errorf("negative duration not allowed: %s", s)
	}

	var d time.Duration
	switch unit {
	case 'd':
		d = time.Duration(value) * 24 * time.Hour
	case 'h':
		d = time.Duration(value) * time.Hour
	case 'm':
		d = time.Duration(value) * time.Minute
	case 's':
		d = time.Duration(value) * time.Second
	case 'w':
		d = time.Duration(value) * 7 * 24 * time.Hour
	default:
		var err error
		d, err = time.ParseDuration(s)
		if err != nil {
			return 0, err
		}
	}

	maxDuration := time.Duration(maxDurationDays) * 24 * time.Hour
	if d > maxDuration {
		return 0, fmt.Errorf("duration %s exceeds maximum (%dd)", s, maxDurationDays)
	}

	return d, nil
}

package kube

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	metricsclientset "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/kubefit/kubefit/internal/series"
)

// UsageSample is one instantaneous usage reading for a pod, summed
// across its containers.
type UsageSample struct {
	Namespace string
	Pod       string
	CPU       series.Series
	Memory    series.Series
}

// Snapshotter reads instantaneous usage from the metrics-server API.
// It is the degraded path when no Prometheus is reachable: each pod
// gets a single-sample series, which downstream analysis will flag as
// insufficient data.
type Snapshotter struct {
	metrics metricsclientset.Interface
}

// NewSnapshotter creates a Snapshotter over an existing metrics clientset.
func NewSnapshotter(metrics metricsclientset.Interface) *Snapshotter {
	return &Snapshotter{metrics: metrics}
}

// PodUsage returns one usage sample per pod from metrics-server.
func (s *Snapshotter) PodUsage(ctx context.Context, excludeNamespaces []string) ([]UsageSample, error) {
	excluded := make(map[string]bool, len(excludeNamespaces))
	for _, ns := range excludeNamespaces {
		excluded[ns] = true
	}

	podMetrics, err := s.metrics.MetricsV1beta1().PodMetricses(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list pod metrics: %w", err)
	}

	now := time.Now()
	var out []UsageSample
	for i := range podMetrics.Items {
		pm := &podMetrics.Items[i]
		if excluded[pm.Namespace] {
			continue
		}

		var cpu, mem float64
		for j := range pm.Containers {
			usage := pm.Containers[j].Usage
			if q, ok := usage[corev1.ResourceCPU]; ok {
				cpu += q.AsApproximateFloat64()
			}
			if q, ok := usage[corev1.ResourceMemory]; ok {
				mem += q.AsApproximateFloat64()
			}
		}

		ts := pm.Timestamp.Time
		if ts.IsZero() {
			ts = now
		}
		out = append(out, UsageSample{
			Namespace: pm.Namespace,
			Pod:       pm.Name,
			CPU:       series.Series{{Timestamp: ts, Value: cpu}},
			Memory:    series.Series{{Timestamp: ts, Value: mem}},
		})
	}
	return out, nil
}

// Package collect assembles an analysis input from the two data planes:
// the API server for spec-side facts and a metrics provider for usage
// history. When Prometheus is unreachable it degrades to single-sample
// metrics-server snapshots instead of failing the run.
package collect

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/common/model"

	"github.com/kubefit/kubefit/internal/advisor"
	"github.com/kubefit/kubefit/internal/config"
	"github.com/kubefit/kubefit/internal/engine"
	"github.com/kubefit/kubefit/internal/kube"
	"github.com/kubefit/kubefit/internal/metrics"
	"github.com/kubefit/kubefit/internal/profile"
	"github.com/kubefit/kubefit/internal/series"
)

const defaultStep = time.Minute

// Options scopes one collection pass.
type Options struct {
	Cluster     string
	Environment string
	Project     string

	// Namespaces restricts collection; empty means every discovered
	// namespace outside ExcludeNamespaces.
	Namespaces        []string
	ExcludeNamespaces []string

	// Window and Step override the configured metrics window and the
	// range-query resolution. Zero values take defaults.
	Window time.Duration
	Step   time.Duration

	// OnCollect, when set, is called once discovery has finished and
	// usage collection is about to start.
	OnCollect func()
}

// Collector joins cluster discovery with a metrics provider.
type Collector struct {
	discoverer *kube.Discoverer
	provider   metrics.Provider
	snapshot   *kube.Snapshotter
	queries    *metrics.QueryBuilder

	now func() time.Time
}

// New creates a Collector. The provider may be nil when no Prometheus is
// configured; the snapshotter may be nil when no metrics-server fallback
// is available.
func New(discoverer *kube.Discoverer, provider metrics.Provider, snapshot *kube.Snapshotter) *Collector {
	return &Collector{
		discoverer: discoverer,
		provider:   provider,
		snapshot:   snapshot,
		queries:    metrics.NewQueryBuilder(),
		now:        time.Now,
	}
}

// Assemble discovers the cluster and attaches usage series to every pod
// and node. Discovery failures abort the run; per-namespace and per-node
// metric failures are recorded on the affected entities and the run
// continues.
func (c *Collector) Assemble(ctx context.Context, cfg config.Config, opts Options) (engine.Input, error) {
	pods, err := c.discoverer.Pods(ctx, opts.ExcludeNamespaces)
	if err != nil {
		return engine.Input{}, fmt.Errorf("discover pods: %w", err)
	}
	nodes, err := c.discoverer.Nodes(ctx)
	if err != nil {
		return engine.Input{}, fmt.Errorf("discover nodes: %w", err)
	}
	hpas, err := c.discoverer.HPAs(ctx, opts.ExcludeNamespaces)
	if err != nil {
		return engine.Input{}, fmt.Errorf("discover autoscalers: %w", err)
	}

	if len(opts.Namespaces) > 0 {
		pods = filterPods(pods, opts.Namespaces)
		hpas = filterHPAs(hpas, opts.Namespaces)
	}

	window := opts.Window
	if window <= 0 {
		window = cfg.MetricsWindow
	}
	step := opts.Step
	if step <= 0 {
		step = defaultStep
	}

	if opts.OnCollect != nil {
		opts.OnCollect()
	}
	usage := c.collectUsage(ctx, pods, window, step)

	in := engine.Input{
		Cluster:     opts.Cluster,
		Environment: opts.Environment,
		Project:     opts.Project,
		HPAs:        hpas,
	}

	for _, pod := range pods {
		key := pod.Namespace + "/" + pod.Name
		pi := engine.PodInput{
			Identity: profile.Identity{
				Cluster:   opts.Cluster,
				Namespace: pod.Namespace,
				OwnerKind: pod.OwnerKind,
				OwnerName: pod.OwnerName,
				Pod:       pod.Name,
				Node:      pod.Node,
			},
			Requests:           profile.Resources{CPU: pod.RequestsCPU, Memory: pod.RequestsMemory},
			Limits:             profile.Resources{CPU: pod.LimitsCPU, Memory: pod.LimitsMemory},
			CPU:                usage.podCPU[key],
			Memory:             usage.podMemory[key],
			Labels:             pod.Labels,
			DisruptionsAllowed: pod.DisruptionsAllowed,
			Err:                usage.podErr[pod.Namespace],
		}
		in.Pods = append(in.Pods, pi)
	}

	for _, node := range nodes {
		ni := engine.NodeInput{
			Name:              node.Name,
			InstanceType:      node.InstanceType,
			AllocatableCPU:    node.AllocatableCPU,
			AllocatableMemory: node.AllocatableMemory,
			CPU:               usage.nodeCPU[node.Name],
			Memory:            usage.nodeMemory[node.Name],
			Err:               usage.nodeErr,
		}
		in.Nodes = append(in.Nodes, ni)
	}

	return in, nil
}

// clusterUsage holds whatever usage data the metrics plane yielded.
// Missing keys mean no data arrived for that entity.
type clusterUsage struct {
	podCPU    map[string]series.Series
	podMemory map[string]series.Series
	podErr    map[string]error

	nodeCPU    map[string]series.Series
	nodeMemory map[string]series.Series
	nodeErr    error
}

func newClusterUsage() clusterUsage {
	return clusterUsage{
		podCPU:     map[string]series.Series{},
		podMemory:  map[string]series.Series{},
		podErr:     map[string]error{},
		nodeCPU:    map[string]series.Series{},
		nodeMemory: map[string]series.Series{},
	}
}

func (c *Collector) collectUsage(ctx context.Context, pods []kube.PodSpec, window, step time.Duration) clusterUsage {
	if c.provider != nil {
		if err := c.provider.Health(ctx); err == nil {
			return c.collectFromPrometheus(ctx, pods, window, step)
		}
	}
	return c.collectFromSnapshot(ctx, pods)
}

func (c *Collector) collectFromPrometheus(ctx context.Context, pods []kube.PodSpec, window, step time.Duration) clusterUsage {
	usage := newClusterUsage()
	end := c.now()
	start := end.Add(-window)

	for _, ns := range namespacesOf(pods) {
		visible, err := c.namespaceVisible(ctx, ns, end)
		if err != nil {
			usage.podErr[ns] = fmt.Errorf("check metric visibility for namespace %s: %w", ns, err)
			continue
		}
		if !visible {
			usage.podErr[ns] = fmt.Errorf("namespace %s has no container metrics in prometheus", ns)
			continue
		}
		cpuMatrix, err := c.provider.QueryRange(ctx, c.queries.PodCPUUsage(ns), start, end, step)
		if err != nil {
			usage.podErr[ns] = fmt.Errorf("query cpu usage for namespace %s: %w", ns, err)
			continue
		}
		memMatrix, err := c.provider.QueryRange(ctx, c.queries.PodMemoryUsage(ns), start, end, step)
		if err != nil {
			usage.podErr[ns] = fmt.Errorf("query memory usage for namespace %s: %w", ns, err)
			continue
		}
		mergeMatrix(usage.podCPU, ns, cpuMatrix, "pod")
		mergeMatrix(usage.podMemory, ns, memMatrix, "pod")
	}

	nodeCPU, err := c.provider.QueryRange(ctx, c.queries.NodeCPUUsage(), start, end, step)
	if err != nil {
		usage.nodeErr = fmt.Errorf("query node cpu usage: %w", err)
		return usage
	}
	nodeMem, err := c.provider.QueryRange(ctx, c.queries.NodeMemoryUsage(), start, end, step)
	if err != nil {
		usage.nodeErr = fmt.Errorf("query node memory usage: %w", err)
		return usage
	}
	mergeMatrix(usage.nodeCPU, "", nodeCPU, "node")
	mergeMatrix(usage.nodeMemory, "", nodeMem, "node")

	return usage
}

// namespaceVisible reports whether Prometheus scrapes any container
// series for the namespace. Querying an invisible namespace would return
// empty matrices indistinguishable from idle workloads.
func (c *Collector) namespaceVisible(ctx context.Context, namespace string, ts time.Time) (bool, error) {
	vec, err := c.provider.QueryInstant(ctx, c.queries.HasNamespaceMetrics(namespace), ts)
	if err != nil {
		return false, err
	}
	for _, s := range vec {
		if s.Value > 0 {
			return true, nil
		}
	}
	return false, nil
}

// collectFromSnapshot is the degraded path: one sample per pod from
// metrics-server, nothing for nodes.
func (c *Collector) collectFromSnapshot(ctx context.Context, pods []kube.PodSpec) clusterUsage {
	usage := newClusterUsage()
	if c.snapshot == nil {
		return usage
	}

	samples, err := c.snapshot.PodUsage(ctx, nil)
	if err != nil {
		for _, ns := range namespacesOf(pods) {
			usage.podErr[ns] = fmt.Errorf("metrics-server snapshot: %w", err)
		}
		return usage
	}

	for _, s := range samples {
		key := s.Namespace + "/" + s.Pod
		usage.podCPU[key] = s.CPU
		usage.podMemory[key] = s.Memory
	}
	return usage
}

// mergeMatrix indexes a range-query result by the given label. When a
// namespace prefix is supplied keys become "namespace/name".
func mergeMatrix(dst map[string]series.Series, namespace string, m model.Matrix, label model.LabelName) {
	for _, stream := range m {
		name := string(stream.Metric[label])
		if name == "" {
			continue
		}
		key := name
		if namespace != "" {
			key = namespace + "/" + name
		}
		dst[key] = series.FromSampleStream(stream)
	}
}

func namespacesOf(pods []kube.PodSpec) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range pods {
		if !seen[p.Namespace] {
			seen[p.Namespace] = true
			out = append(out, p.Namespace)
		}
	}
	sort.Strings(out)
	return out
}

func filterPods(pods []kube.PodSpec, namespaces []string) []kube.PodSpec {
	keep := map[string]bool{}
	for _, ns := range namespaces {
		keep[ns] = true
	}
	var out []kube.PodSpec
	for _, p := range pods {
		if keep[p.Namespace] {
			out = append(out, p)
		}
	}
	return out
}

func filterHPAs(hpas []advisor.HPAInfo, namespaces []string) []advisor.HPAInfo {
	keep := map[string]bool{}
	for _, ns := range namespaces {
		keep[ns] = true
	}
	var out []advisor.HPAInfo
	for _, h := range hpas {
		if keep[h.Namespace] {
			out = append(out, h)
		}
	}
	return out
}

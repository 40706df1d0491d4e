// Package profile turns raw usage series and workload specs into the
// per-pod and per-node profiles the advisors consume.
package profile

import (
	"time"

	"github.com/kubefit/kubefit/internal/config"
	"github.com/kubefit/kubefit/internal/series"
	"github.com/kubefit/kubefit/internal/stats"
)

// idleCPUCores is the p95 CPU level below which a workload is flagged idle.
const idleCPUCores = 0.001

// Identity names one analyzed workload.
type Identity struct {
	Cluster   string `json:"cluster"`
	Namespace string `json:"namespace"`
	OwnerKind string `json:"ownerKind"`
	OwnerName string `json:"ownerName"`
	Pod       string `json:"pod"`
	Container string `json:"container,omitempty"`
	Node      string `json:"node,omitempty"`
}

// Resources holds a CPU (cores) and memory (bytes) pair. Nil means unset,
// which is distinct from zero.
type Resources struct {
	CPU    *float64 `json:"cpu,omitempty"`
	Memory *float64 `json:"memory,omitempty"`
}

// WindowEvidence records why an observation window was judged insufficient.
type WindowEvidence struct {
	ObservedSamples int           `json:"observedSamples"`
	ObservedSpan    time.Duration `json:"observedSpan"`
	RequiredSamples int           `json:"requiredSamples"`
	RequiredWindow  time.Duration `json:"requiredWindow"`
}

// PodProfile is the per-workload analysis input: cleaned usage statistics,
// burst classification, and data-quality flags.
type PodProfile struct {
	Identity Identity `json:"identity"`

	Requests Resources `json:"requests"`
	Limits   Resources `json:"limits"`

	CPU    *series.Stats `json:"cpu,omitempty"`
	Memory *series.Stats `json:"memory,omitempty"`

	Bursty     bool     `json:"bursty"`
	SpikeRatio *float64 `json:"spikeRatio,omitempty"`
	Idle       bool     `json:"idle"`

	// Overprovision ratios (request / p95); nil when either side is missing.
	CPUOverprovision    *float64 `json:"cpuOverprovision,omitempty"`
	MemoryOverprovision *float64 `json:"memoryOverprovision,omitempty"`

	InsufficientData bool            `json:"insufficientData"`
	Evidence         *WindowEvidence `json:"evidence,omitempty"`

	// CollectionError is set when fetching this entity's data failed;
	// the run continues without it.
	CollectionError string `json:"collectionError,omitempty"`

	Labels             map[string]string `json:"labels,omitempty"`
	DisruptionsAllowed *int              `json:"disruptionsAllowed,omitempty"`
}

// Key returns a stable sort/identity key for the profile.
func (p PodProfile) Key() string {
	return p.Identity.Namespace + "/" + p.Identity.Pod + "/" + p.Identity.Container
}

// NodeProfile is the per-node analysis input.
type NodeProfile struct {
	Name         string `json:"name"`
	InstanceType string `json:"instanceType,omitempty"`

	AllocatableCPU    float64 `json:"allocatableCpu"`
	AllocatableMemory float64 `json:"allocatableMemory"`

	RequestedCPU    float64 `json:"requestedCpu"`
	RequestedMemory float64 `json:"requestedMemory"`

	UsageCPUP95    *float64 `json:"usageCpuP95,omitempty"`
	UsageMemoryP95 *float64 `json:"usageMemoryP95,omitempty"`

	// Fragmentation ratios; nil when undefined (no recorded requests or
	// no allocatable), never coerced to 0 or 1.
	CPUFragmentation    *float64 `json:"cpuFragmentation,omitempty"`
	MemoryFragmentation *float64 `json:"memoryFragmentation,omitempty"`

	PodCount int `json:"podCount"`

	Limitations []string `json:"limitations,omitempty"`
}

// BuildPodProfile cleans both usage series, validates the observation
// window, and summarizes the result. Series hygiene happens here and only
// here; advisors never see raw samples.
func BuildPodProfile(id Identity, requests, limits Resources, cpuSeries, memSeries series.Series, cfg config.Config) PodProfile {
	p := PodProfile{
		Identity: id,
		Requests: requests,
		Limits:   limits,
	}

	cpu := series.Clean(cpuSeries)
	mem := series.Clean(memSeries)

	cpuOK := series.WindowSufficient(cpu, cfg.MinSamples, cfg.MinWindow)
	memOK := series.WindowSufficient(mem, cfg.MinSamples, cfg.MinWindow)
	if !cpuOK || !memOK {
		p.InsufficientData = true
		p.Evidence = windowEvidence(cpu, mem, cpuOK, cfg)
	}

	if st, err := series.Summarize(cpu); err == nil {
		s := st
		p.CPU = &s
	}
	if st, err := series.Summarize(mem); err == nil {
		s := st
		p.Memory = &s
	}

	if len(cpu) > 0 {
		vals := cpu.Values()
		p.Bursty = stats.IsBursty(vals, cfg.BurstRatioThreshold)
		if r, err := stats.SpikeRatio(vals); err == nil {
			p.SpikeRatio = &r
		}
	}
	if p.CPU != nil && p.CPU.P95 < idleCPUCores {
		p.Idle = true
	}

	p.CPUOverprovision = overprovision(requests.CPU, p.CPU)
	p.MemoryOverprovision = overprovision(requests.Memory, p.Memory)

	return p
}

// windowEvidence reports the weaker of the two series when flagging an
// insufficient observation window.
func windowEvidence(cpu, mem series.Series, cpuOK bool, cfg config.Config) *WindowEvidence {
	weaker := cpu
	if cpuOK {
		weaker = mem
	}
	return &WindowEvidence{
		ObservedSamples: len(weaker),
		ObservedSpan:    weaker.Span(),
		RequiredSamples: cfg.MinSamples,
		RequiredWindow:  cfg.MinWindow,
	}
}

func overprovision(request *float64, usage *series.Stats) *float64 {
	if request == nil || usage == nil || usage.P95 <= 0 {
		return nil
	}
	r := *request / usage.P95
	return &r
}

// BuildNodeProfile computes fragmentation and utilization for one node
// from its allocatable capacity, the summed requests of its pods, and its
// usage series.
func BuildNodeProfile(name, instanceType string, allocCPU, allocMem float64, pods []PodProfile, cpuSeries, memSeries series.Series, cfg config.Config) NodeProfile {
	n := NodeProfile{
		Name:              name,
		InstanceType:      instanceType,
		AllocatableCPU:    allocCPU,
		AllocatableMemory: allocMem,
		PodCount:          len(pods),
	}

	for _, p := range pods {
		if p.Requests.CPU != nil {
			n.RequestedCPU += *p.Requests.CPU
		}
		if p.Requests.Memory != nil {
			n.RequestedMemory += *p.Requests.Memory
		}
	}

	if st, err := series.Summarize(series.Clean(cpuSeries)); err == nil {
		v := st.P95
		n.UsageCPUP95 = &v
	}
	if st, err := series.Summarize(series.Clean(memSeries)); err == nil {
		v := st.P95
		n.UsageMemoryP95 = &v
	}

	n.CPUFragmentation = fragmentation(allocCPU, n.RequestedCPU)
	if n.CPUFragmentation == nil {
		n.Limitations = append(n.Limitations, limitationFor(name, "cpu", allocCPU))
	}
	n.MemoryFragmentation = fragmentation(allocMem, n.RequestedMemory)
	if n.MemoryFragmentation == nil {
		n.Limitations = append(n.Limitations, limitationFor(name, "memory", allocMem))
	}

	return n
}

// fragmentation returns the unused-request share of allocatable, or nil
// when the ratio is undefined.
func fragmentation(allocatable, requested float64) *float64 {
	if allocatable <= 0 || requested <= 0 {
		return nil
	}
	f := (allocatable - requested) / allocatable
	if f < 0 {
		f = 0
	}
	return &f
}

func limitationFor(node, resource string, allocatable float64) string {
	if allocatable <= 0 {
		return "node " + node + ": " + resource + " fragmentation undefined (allocatable unknown)"
	}
	return "node " + node + ": " + resource + " fragmentation undefined (no recorded pod requests)"
}

// Package engine orchestrates a full analysis run: per-entity profiling
// fans out across a bounded worker pool, advisors run over the completed
// profiles, and the output is sorted so identical inputs always produce
// identical results.
package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kubefit/kubefit/internal/advisor"
	"github.com/kubefit/kubefit/internal/config"
	"github.com/kubefit/kubefit/internal/profile"
	"github.com/kubefit/kubefit/internal/series"
)

const defaultWorkers = 8

// PodInput is one workload as assembled by the collectors: spec-side facts
// from the API server, usage series from the metrics provider.
type PodInput struct {
	Identity profile.Identity
	Requests profile.Resources
	Limits   profile.Resources

	CPU    series.Series
	Memory series.Series

	Labels             map[string]string
	DisruptionsAllowed *int

	// Err records a per-entity collection failure. The entity is still
	// profiled from whatever arrived; the run never aborts on one pod.
	Err error
}

// NodeInput is one node as assembled by the collectors.
type NodeInput struct {
	Name         string
	InstanceType string

	AllocatableCPU    float64
	AllocatableMemory float64

	CPU    series.Series
	Memory series.Series

	Err error
}

// Input is everything one analysis run consumes.
type Input struct {
	Cluster     string
	Environment string
	Project     string

	Pods  []PodInput
	Nodes []NodeInput
	HPAs  []advisor.HPAInfo
}

// Result is the complete, deterministic output of a run.
type Result struct {
	PodProfiles  []profile.PodProfile
	NodeProfiles []profile.NodeProfile

	Attributions    []advisor.Attribution
	Recommendations []advisor.Recommendation

	// Errors lists per-entity collection failures, sorted, one line each.
	Errors []string
}

// Opts tunes a run. The zero value asks for defaults.
type Opts struct {
	Workers int
}

// Run executes the analysis pipeline. Profiling is concurrent; everything
// downstream of the profiles is sequential over sorted slices, and
// fragmentation attribution starts only once every node profile exists.
func Run(in Input, cfg config.Config, opts Opts) Result {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	var res Result
	res.PodProfiles = buildPodProfiles(in, cfg, workers, &res)
	res.NodeProfiles = buildNodeProfiles(in, res.PodProfiles, cfg, workers, &res)

	var resizes []advisor.Recommendation
	for i := range res.PodProfiles {
		if rec := advisor.RecommendPodResize(res.PodProfiles[i], cfg); rec != nil {
			resizes = append(resizes, *rec)
		}
	}
	res.Recommendations = append(res.Recommendations, resizes...)

	demand := advisor.PostResizeDemand(res.PodProfiles, resizes)
	if rec := advisor.RecommendNodeRightsize(res.NodeProfiles, demand, cfg); rec != nil {
		res.Recommendations = append(res.Recommendations, *rec)
	}

	// All node profiles are complete here; fit checks may compare any
	// node against the whole pool.
	byNode := podsByNode(res.PodProfiles)
	for _, n := range res.NodeProfiles {
		if attr := advisor.AttributeFragmentation(n, byNode[n.Name], res.NodeProfiles, cfg); attr != nil {
			res.Attributions = append(res.Attributions, *attr)
		}
	}

	res.Recommendations = append(res.Recommendations,
		advisor.DetectHPAMisalignment(in.HPAs, res.PodProfiles, cfg)...)

	sort.Slice(res.Recommendations, func(i, j int) bool {
		return res.Recommendations[i].SortKey() < res.Recommendations[j].SortKey()
	})
	sort.Strings(res.Errors)
	return res
}

func buildPodProfiles(in Input, cfg config.Config, workers int, res *Result) []profile.PodProfile {
	profiles := make([]profile.PodProfile, len(in.Pods))

	var wg sync.WaitGroup
	var mu sync.Mutex
	semaphore := make(chan struct{}, workers)

	for i := range in.Pods {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			pi := in.Pods[idx]
			p := profile.BuildPodProfile(pi.Identity, pi.Requests, pi.Limits, pi.CPU, pi.Memory, cfg)
			p.Labels = pi.Labels
			p.DisruptionsAllowed = pi.DisruptionsAllowed
			if pi.Err != nil {
				p.CollectionError = pi.Err.Error()
				mu.Lock()
				res.Errors = append(res.Errors, fmt.Sprintf("pod %s: %v", p.Key(), pi.Err))
				mu.Unlock()
			}
			profiles[idx] = p
		}(i)
	}
	wg.Wait()

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Key() < profiles[j].Key() })
	return profiles
}

func buildNodeProfiles(in Input, pods []profile.PodProfile, cfg config.Config, workers int, res *Result) []profile.NodeProfile {
	byNode := podsByNode(pods)
	profiles := make([]profile.NodeProfile, len(in.Nodes))

	var wg sync.WaitGroup
	var mu sync.Mutex
	semaphore := make(chan struct{}, workers)

	for i := range in.Nodes {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			ni := in.Nodes[idx]
			n := profile.BuildNodeProfile(ni.Name, ni.InstanceType,
				ni.AllocatableCPU, ni.AllocatableMemory,
				byNode[ni.Name], ni.CPU, ni.Memory, cfg)
			if ni.Err != nil {
				n.Limitations = append(n.Limitations, fmt.Sprintf("collection error: %v", ni.Err))
				mu.Lock()
				res.Errors = append(res.Errors, fmt.Sprintf("node %s: %v", ni.Name, ni.Err))
				mu.Unlock()
			}
			profiles[idx] = n
		}(i)
	}
	wg.Wait()

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles
}

func podsByNode(pods []profile.PodProfile) map[string][]profile.PodProfile {
	byNode := make(map[string][]profile.PodProfile)
	for _, p := range pods {
		if p.Identity.Node == "" {
			continue
		}
		byNode[p.Identity.Node] = append(byNode[p.Identity.Node], p)
	}
	return byNode
}

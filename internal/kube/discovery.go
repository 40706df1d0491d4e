package kube

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/kubefit/kubefit/internal/advisor"
)

// instanceTypeLabel is the well-known node label carrying the cloud
// instance type.
const instanceTypeLabel = "node.kubernetes.io/instance-type"

// PodSpec is the API-server view of one running pod: identity, summed
// container requests and limits, labels, and disruption protection.
type PodSpec struct {
	Namespace string
	Name      string
	Node      string

	OwnerKind string
	OwnerName string

	Labels map[string]string

	RequestsCPU    *float64
	RequestsMemory *float64
	LimitsCPU      *float64
	LimitsMemory   *float64

	DisruptionsAllowed *int
}

// NodeSpec is the API-server view of one node.
type NodeSpec struct {
	Name         string
	InstanceType string

	AllocatableCPU    float64
	AllocatableMemory float64
}

// Discoverer reads cluster state from the API server.
type Discoverer struct {
	client kubernetes.Interface
}

// NewDiscoverer creates a Discoverer over an existing clientset.
func NewDiscoverer(client kubernetes.Interface) *Discoverer {
	return &Discoverer{client: client}
}

// Pods lists running pods outside the excluded namespaces, with requests
// and limits summed across containers and PDB protection resolved.
func (d *Discoverer) Pods(ctx context.Context, excludeNamespaces []string) ([]PodSpec, error) {
	excluded := make(map[string]bool, len(excludeNamespaces))
	for _, ns := range excludeNamespaces {
		excluded[ns] = true
	}

	podList, err := d.client.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
		FieldSelector: "status.phase=Running",
	})
	if err != nil {
		return nil, fmt.Errorf("list pods: %w", err)
	}

	pdbs, err := d.client.PolicyV1().PodDisruptionBudgets(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list pod disruption budgets: %w", err)
	}

	var out []PodSpec
	for i := range podList.Items {
		pod := &podList.Items[i]
		if excluded[pod.Namespace] {
			continue
		}

		kind, name := ownerOf(pod)
		spec := PodSpec{
			Namespace: pod.Namespace,
			Name:      pod.Name,
			Node:      pod.Spec.NodeName,
			OwnerKind: kind,
			OwnerName: name,
			Labels:    pod.Labels,
		}
		sumResources(pod, &spec)

		for j := range pdbs.Items {
			pdb := &pdbs.Items[j]
			if pdb.Namespace != pod.Namespace {
				continue
			}
			selector, err := metav1.LabelSelectorAsMap(pdb.Spec.Selector)
			if err != nil || !selectorMatchesLabels(selector, pod.Labels) {
				continue
			}
			allowed := int(pdb.Status.DisruptionsAllowed)
			spec.DisruptionsAllowed = &allowed
			break
		}

		out = append(out, spec)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Nodes lists cluster nodes with allocatable capacity.
func (d *Discoverer) Nodes(ctx context.Context) ([]NodeSpec, error) {
	nodeList, err := d.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	out := make([]NodeSpec, 0, len(nodeList.Items))
	for i := range nodeList.Items {
		node := &nodeList.Items[i]
		spec := NodeSpec{
			Name:         node.Name,
			InstanceType: node.Labels[instanceTypeLabel],
		}
		if cpu := node.Status.Allocatable.Cpu(); cpu != nil {
			spec.AllocatableCPU = cpu.AsApproximateFloat64()
		}
		if mem := node.Status.Allocatable.Memory(); mem != nil {
			spec.AllocatableMemory = mem.AsApproximateFloat64()
		}
		out = append(out, spec)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// HPAs lists v2 HorizontalPodAutoscalers in detector form.
func (d *Discoverer) HPAs(ctx context.Context, excludeNamespaces []string) ([]advisor.HPAInfo, error) {
	excluded := make(map[string]bool, len(excludeNamespaces))
	for _, ns := range excludeNamespaces {
		excluded[ns] = true
	}

	hpaList, err := d.client.AutoscalingV2().HorizontalPodAutoscalers(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list horizontal pod autoscalers: %w", err)
	}

	var out []advisor.HPAInfo
	for i := range hpaList.Items {
		hpa := &hpaList.Items[i]
		if excluded[hpa.Namespace] {
			continue
		}

		info := advisor.HPAInfo{
			Namespace:       hpa.Namespace,
			Name:            hpa.Name,
			TargetKind:      hpa.Spec.ScaleTargetRef.Kind,
			TargetName:      hpa.Spec.ScaleTargetRef.Name,
			MaxReplicas:     hpa.Spec.MaxReplicas,
			CurrentReplicas: hpa.Status.CurrentReplicas,
			MinReplicas:     1,
		}
		if hpa.Spec.MinReplicas != nil {
			info.MinReplicas = *hpa.Spec.MinReplicas
		}
		for _, m := range hpa.Spec.Metrics {
			if m.Resource != nil && m.Resource.Name == corev1.ResourceCPU {
				info.ScalesOnCPU = true
			}
		}
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// ownerOf resolves the controlling workload. ReplicaSet owners are mapped
// back to their Deployment by stripping the pod-template hash suffix.
func ownerOf(pod *corev1.Pod) (kind, name string) {
	for _, ref := range pod.OwnerReferences {
		if ref.Controller == nil || !*ref.Controller {
			continue
		}
		if ref.Kind == "ReplicaSet" {
			return "Deployment", trimHashSuffix(ref.Name)
		}
		return ref.Kind, ref.Name
	}
	return "Pod", pod.Name
}

var hashSuffix = regexp.MustCompile(`-[a-f0-9]{5,10}$`)

func trimHashSuffix(name string) string {
	return hashSuffix.ReplaceAllString(name, "")
}

func sumResources(pod *corev1.Pod, spec *PodSpec) {
	var cpuReq, memReq, cpuLim, memLim float64
	var hasCPUReq, hasMemReq, hasCPULim, hasMemLim bool

	for i := range pod.Spec.Containers {
		res := &pod.Spec.Containers[i].Resources
		if q, ok := res.Requests[corev1.ResourceCPU]; ok {
			cpuReq += q.AsApproximateFloat64()
			hasCPUReq = true
		}
		if q, ok := res.Requests[corev1.ResourceMemory]; ok {
			memReq += q.AsApproximateFloat64()
			hasMemReq = true
		}
		if q, ok := res.Limits[corev1.ResourceCPU]; ok {
			cpuLim += q.AsApproximateFloat64()
			hasCPULim = true
		}
		if q, ok := res.Limits[corev1.ResourceMemory]; ok {
			memLim += q.AsApproximateFloat64()
			hasMemLim = true
		}
	}

	if hasCPUReq {
		spec.RequestsCPU = &cpuReq
	}
	if hasMemReq {
		spec.RequestsMemory = &memReq
	}
	if hasCPULim {
		spec.LimitsCPU = &cpuLim
	}
	if hasMemLim {
		spec.LimitsMemory = &memLim
	}
}

// selectorMatchesLabels reports whether every selector key/value appears
// in the labels. An empty selector matches everything.
func selectorMatchesLabels(selector, labels map[string]string) bool {
	for k, v := range selector {
		if labels[k] != v {
			return false
		}
	}
	return true
}

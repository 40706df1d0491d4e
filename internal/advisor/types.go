// Package advisor contains the pure decision logic: pod resize sizing,
// cluster node rightsizing, fragmentation attribution, HPA misalignment
// detection, and the safety gate every recommendation passes through.
// Nothing here performs I/O; inputs are profiles and a config value.
package advisor

// Kind discriminates the recommendation union.
type Kind string

const (
	KindPodResize       Kind = "POD_RESIZE"
	KindNodeRightsize   Kind = "NODE_RIGHTSIZE"
	KindHPAMisalignment Kind = "HPA_MISALIGNMENT"
)

// RiskLevel grades how dangerous acting on a recommendation is.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ConfidenceLevel grades how much evidence backs a recommendation.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// ResizeGate is the tri-state answer to "may this be applied as-is".
type ResizeGate string

const (
	GateSafe        ResizeGate = "true"
	GateUnsafe      ResizeGate = "false"
	GatePartialOnly ResizeGate = "partial_only"
)

// Safety is the classification attached to every recommendation. It is
// the sole safety contract consumers may rely on.
type Safety struct {
	Risk         RiskLevel       `json:"risk"`
	Confidence   ConfidenceLevel `json:"confidence"`
	SafeToResize ResizeGate      `json:"safe_to_resize"`
	Reasons      []string        `json:"reasons,omitempty"`
}

// ResourcePair holds recommended or current values for both resources.
type ResourcePair struct {
	CPURequest    *float64 `json:"cpu_request,omitempty"`
	CPULimit      *float64 `json:"cpu_limit,omitempty"`
	MemoryRequest *float64 `json:"memory_request,omitempty"`
	MemoryLimit   *float64 `json:"memory_limit,omitempty"`
}

// Savings is positive when resources are freed, negative when the
// recommendation needs more than is currently requested.
type Savings struct {
	CPUCores    float64 `json:"cpu_cores"`
	MemoryBytes float64 `json:"memory_bytes"`
	MemoryMB    float64 `json:"memory_mb"`
}

// PodResizeDetail carries the sizing result for one workload.
type PodResizeDetail struct {
	Namespace string `json:"namespace"`
	Pod       string `json:"pod"`

	Current     ResourcePair `json:"current"`
	Recommended ResourcePair `json:"recommended"`
	Savings     Savings      `json:"savings"`

	UsagePercentiles UsagePercentiles `json:"usage_percentiles"`
	Explanation      string           `json:"explanation"`
}

// UsagePercentiles echoes the observed statistics a sizing was based on.
type UsagePercentiles struct {
	CPUP95     float64 `json:"cpu_p95"`
	CPUP99     float64 `json:"cpu_p99"`
	CPUP100    float64 `json:"cpu_p100"`
	MemoryP95  float64 `json:"memory_p95"`
	MemoryP99  float64 `json:"memory_p99"`
	MemoryP100 float64 `json:"memory_p100"`
}

// Direction is the cluster-level capacity verdict.
type Direction string

const (
	DirectionScaleUp   Direction = "scale_up"
	DirectionScaleDown Direction = "scale_down"
	DirectionRightSize Direction = "right_size"
	DirectionNone      Direction = "none"
)

// Strategy names how a scale-down should be achieved.
type Strategy string

const (
	StrategyConsolidate  Strategy = "consolidate"
	StrategySmallerNodes Strategy = "smaller_nodes"
	StrategyUnderused    Strategy = "underused"
)

// NodeRightsizeDetail is the cluster-scoped capacity recommendation.
type NodeRightsizeDetail struct {
	Direction Direction `json:"direction"`
	Strategy  Strategy  `json:"strategy,omitempty"`

	CurrentNodeCount int `json:"current_node_count"`
	RequiredNodes    int `json:"required_nodes"`

	CPUUtilizationPct    float64 `json:"cpu_utilization_pct"`
	MemoryUtilizationPct float64 `json:"memory_utilization_pct"`
	CPUPressure          float64 `json:"cpu_pressure"`
	MemoryPressure       float64 `json:"memory_pressure"`
	NodeEfficiency       float64 `json:"node_efficiency"`

	ShapeImbalance bool   `json:"shape_imbalance"`
	ShapeBias      string `json:"shape_bias,omitempty"`

	Explanation string `json:"explanation"`
}

// HPARule names the misalignment pattern a finding matched.
type HPARule string

const (
	HPARuleLowUtilization HPARule = "low_utilization"
	HPARuleWrongMetric    HPARule = "wrong_metric"
	HPARuleFloorTooHigh   HPARule = "floor_too_high"
)

// HPAMisalignmentDetail is one HPA finding.
type HPAMisalignmentDetail struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`

	TargetKind string `json:"target_kind"`
	TargetName string `json:"target_name"`

	Rule HPARule `json:"rule"`

	MinReplicas     int32 `json:"min_replicas"`
	MaxReplicas     int32 `json:"max_replicas"`
	CurrentReplicas int32 `json:"current_replicas"`

	CPUUtilRatio    *float64 `json:"cpu_util_ratio,omitempty"`
	MemoryUtilRatio *float64 `json:"memory_util_ratio,omitempty"`

	Explanation string `json:"explanation"`
}

// Recommendation is the tagged union emitted by the advisors: exactly one
// detail pointer is non-nil and it matches Type.
type Recommendation struct {
	Type Kind `json:"type"`

	PodResize       *PodResizeDetail       `json:"pod_resize,omitempty"`
	NodeRightsize   *NodeRightsizeDetail   `json:"node_rightsize,omitempty"`
	HPAMisalignment *HPAMisalignmentDetail `json:"hpa_misalignment,omitempty"`

	Safety Safety `json:"safety"`
}

// SortKey yields a stable ordering key so report output is deterministic.
func (r Recommendation) SortKey() string {
	switch r.Type {
	case KindPodResize:
		return string(r.Type) + "/" + r.PodResize.Namespace + "/" + r.PodResize.Pod
	case KindHPAMisalignment:
		return string(r.Type) + "/" + r.HPAMisalignment.Namespace + "/" + r.HPAMisalignment.Name + "/" + string(r.HPAMisalignment.Rule)
	default:
		return string(r.Type)
	}
}

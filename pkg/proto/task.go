package proto

// TaskName identifies a unit of work in a playbook. The set is closed:
// the task runner dispatches on these values with an exhaustive switch,
// so an unknown name is a programming error, not a runtime lookup miss.
type TaskName string

// Sourcing signal tasks.
const (
	TaskDetectContractExpiry    TaskName = "detect_contract_expiry_signals"
	TaskDetectPerformanceDrop   TaskName = "detect_performance_degradation_signals"
	TaskDetectSpendAnomalies    TaskName = "detect_spend_anomalies"
	TaskApplyRelevanceFilters   TaskName = "apply_relevance_filters"
	TaskGroundedSignalSummary   TaskName = "semantic_grounded_summary"
	TaskAutoprepRecommendations TaskName = "produce_autoprep_recommendations"
)

// Supplier scoring tasks.
const (
	TaskBuildEvaluationCriteria TaskName = "build_evaluation_criteria"
	TaskPullSupplierPerformance TaskName = "pull_supplier_performance"
	TaskPullRiskIndicators      TaskName = "pull_risk_indicators"
	TaskNormalizeMetrics        TaskName = "normalize_metrics"
	TaskComputeScoresAndRank    TaskName = "compute_scores_and_rank"
	TaskEligibilityChecks       TaskName = "eligibility_checks"
	TaskGenerateExplanations    TaskName = "generate_explanations"
)

// RFx drafting tasks.
const (
	TaskDetermineRfxPath    TaskName = "determine_rfx_path"
	TaskRetrieveTemplates   TaskName = "retrieve_templates_and_past_examples"
	TaskAssembleRfxSections TaskName = "assemble_rfx_sections"
	TaskCompletenessChecks  TaskName = "completeness_checks"
	TaskDraftRequirements   TaskName = "draft_questions_and_requirements"
	TaskCreateQATracker     TaskName = "create_qa_tracker"
)

// Negotiation support tasks.
const (
	TaskCompareBids           TaskName = "compare_bids"
	TaskLeverageExtraction    TaskName = "leverage_point_extraction"
	TaskBenchmarkRetrieval    TaskName = "benchmark_retrieval"
	TaskPriceAnomalyDetection TaskName = "price_anomaly_detection"
	TaskProposeTargets        TaskName = "propose_targets_and_fallbacks"
	TaskNegotiationPlaybook   TaskName = "negotiation_playbook"
)

// Contract support tasks.
const (
	TaskExtractKeyTerms      TaskName = "extract_key_terms"
	TaskTermValidation       TaskName = "term_validation"
	TaskTermAlignmentSummary TaskName = "term_alignment_summary"
	TaskHandoffPacket        TaskName = "implementation_handoff_packet"
)

// Implementation tasks.
const (
	TaskBuildRolloutChecklist  TaskName = "build_rollout_checklist"
	TaskComputeExpectedSavings TaskName = "compute_expected_savings"
	TaskDefineEarlyIndicators  TaskName = "define_early_indicators"
	TaskReportingTemplates     TaskName = "reporting_templates"
)

// TaskStatus is the outcome of one task execution.
type TaskStatus string

const (
	TaskCompleted TaskStatus = "Completed"
	TaskSkipped   TaskStatus = "Skipped"
	TaskErrored   TaskStatus = "Error"
)

// SourceType classifies where a grounding reference points.
type SourceType string

const (
	GroundDocument SourceType = "document"
	GroundDataRow  SourceType = "data_row"
	GroundRule     SourceType = "rule"
)

// GroundingRef links a claim in task output to the retrieved passage or
// data row that supports it.
type GroundingRef struct {
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id"`
	Relevance  float64    `json:"relevance"`
	Excerpt    string     `json:"excerpt,omitempty"`
}

// TaskResult is the outcome of executing one task through the four-phase
// pipeline. Invariant: Skipped results carry no grounding and no tokens.
type TaskResult struct {
	TaskName   TaskName       `json:"task_name"`
	Status     TaskStatus     `json:"status"`
	Data       map[string]any `json:"data,omitempty"`
	GroundedIn []GroundingRef `json:"grounded_in,omitempty"`
	TokensUsed int            `json:"tokens_used"`
	Err        string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}


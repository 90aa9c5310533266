package planner

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"caseflow/pkg/proto"
)

//go:embed playbooks.yaml
var playbooksYAML []byte

type stageEntry struct {
	Agent          string            `yaml:"agent"`
	RequiredInputs []string          `yaml:"required_inputs"`
	Overrides      map[string]string `yaml:"overrides"`
}

type playbookFile struct {
	Stages map[string]stageEntry          `yaml:"stages"`
	Agents map[string]map[string][]string `yaml:"agents"`
}

// playbookSet is the parsed, validated playbook table.
type playbookSet struct {
	stages map[proto.Stage]stageEntry
	agents map[proto.AgentName]map[string][]proto.TaskName
}

var knownTasks = map[proto.TaskName]bool{
	proto.TaskDetectContractExpiry: true, proto.TaskDetectPerformanceDrop: true,
	proto.TaskDetectSpendAnomalies: true, proto.TaskApplyRelevanceFilters: true,
	proto.TaskGroundedSignalSummary: true, proto.TaskAutoprepRecommendations: true,
	proto.TaskBuildEvaluationCriteria: true, proto.TaskPullSupplierPerformance: true,
	proto.TaskPullRiskIndicators: true, proto.TaskNormalizeMetrics: true,
	proto.TaskComputeScoresAndRank: true, proto.TaskEligibilityChecks: true,
	proto.TaskGenerateExplanations: true,
	proto.TaskDetermineRfxPath:     true, proto.TaskRetrieveTemplates: true,
	proto.TaskAssembleRfxSections: true, proto.TaskCompletenessChecks: true,
	proto.TaskDraftRequirements: true, proto.TaskCreateQATracker: true,
	proto.TaskCompareBids: true, proto.TaskLeverageExtraction: true,
	proto.TaskBenchmarkRetrieval: true, proto.TaskPriceAnomalyDetection: true,
	proto.TaskProposeTargets: true, proto.TaskNegotiationPlaybook: true,
	proto.TaskExtractKeyTerms: true, proto.TaskTermValidation: true,
	proto.TaskTermAlignmentSummary: true, proto.TaskHandoffPacket: true,
	proto.TaskBuildRolloutChecklist: true, proto.TaskComputeExpectedSavings: true,
	proto.TaskDefineEarlyIndicators: true, proto.TaskReportingTemplates: true,
}

// loadPlaybooks parses the embedded playbook table and validates that
// every stage has an agent, every agent a default playbook, and every
// task name is one the runner can dispatch.
func loadPlaybooks(maxSteps int) (*playbookSet, error) {
	var file playbookFile
	if err := yaml.Unmarshal(playbooksYAML, &file); err != nil {
		return nil, fmt.Errorf("planner: parse playbooks: %w", err)
	}

	set := &playbookSet{
		stages: make(map[proto.Stage]stageEntry, len(file.Stages)),
		agents: make(map[proto.AgentName]map[string][]proto.TaskName, len(file.Agents)),
	}

	for _, stage := range proto.Stages {
		entry, ok := file.Stages[string(stage)]
		if !ok {
			return nil, fmt.Errorf("planner: no playbook stage entry for %s", stage)
		}
		set.stages[stage] = entry
	}

	for agent, books := range file.Agents {
		name := proto.AgentName(agent)
		parsed := make(map[string][]proto.TaskName, len(books))
		for book, tasks := range books {
			seen := make(map[proto.TaskName]bool, len(tasks))
			list := make([]proto.TaskName, 0, len(tasks))
			for _, t := range tasks {
				tn := proto.TaskName(t)
				if !knownTasks[tn] {
					return nil, fmt.Errorf("planner: unknown task %q in %s/%s", t, agent, book)
				}
				if seen[tn] {
					return nil, fmt.Errorf("planner: duplicate task %q in %s/%s", t, agent, book)
				}
				seen[tn] = true
				list = append(list, tn)
			}
			if maxSteps > 0 && len(list) > maxSteps {
				return nil, fmt.Errorf("planner: playbook %s/%s has %d steps, limit is %d", agent, book, len(list), maxSteps)
			}
			parsed[book] = list
		}
		if _, ok := parsed["default"]; !ok {
			return nil, fmt.Errorf("planner: agent %s has no default playbook", agent)
		}
		set.agents[name] = parsed
	}
	return set, nil
}

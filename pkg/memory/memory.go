// Package memory keeps a bounded rolling summary of each case: recent
// interactions, classified intents, human decisions, the last known
// strategy and supplier choice, and flagged contradictions. The
// supervisor is the only writer; the planner and compliance checker
// read it.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"caseflow/pkg/config"
	"caseflow/pkg/proto"
	"caseflow/pkg/store"
)

// Interaction is one user message / system response pair summary.
type Interaction struct {
	Timestamp time.Time            `json:"timestamp"`
	Message   string               `json:"message"`
	Intent    proto.IntentCategory `json:"intent,omitempty"`
	Agent     proto.AgentName      `json:"agent,omitempty"`
	Summary   string               `json:"summary,omitempty"`
}

// Decision is one recorded human approval or rejection.
type Decision struct {
	Timestamp time.Time   `json:"timestamp"`
	Stage     proto.Stage `json:"stage"`
	Approved  bool        `json:"approved"`
	Note      string      `json:"note,omitempty"`
}

// Contradiction flags a new output disagreeing with a remembered value.
// Both values are kept; resolution belongs to the human.
type Contradiction struct {
	Timestamp time.Time `json:"timestamp"`
	Field     string    `json:"field"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
}

// CaseMemory is the bounded per-case memory. Not goroutine safe on its
// own; the Manager serializes access per case.
type CaseMemory struct {
	CaseID         string                 `json:"case_id"`
	Interactions   []Interaction          `json:"interactions"`
	Intents        []proto.IntentCategory `json:"intents"`
	Decisions      []Decision             `json:"decisions"`
	Contradictions []Contradiction        `json:"contradictions"`
	LastStrategy   string                 `json:"last_strategy,omitempty"`
	LastSupplier   string                 `json:"last_supplier,omitempty"`

	maxInteractions int
	maxIntents      int
	maxDecisions    int
}

// NewCaseMemory creates an empty memory with the configured caps.
func NewCaseMemory(caseID string, cfg config.MemoryCfg) *CaseMemory {
	return &CaseMemory{
		CaseID:          caseID,
		maxInteractions: cfg.MaxInteractions,
		maxIntents:      cfg.MaxIntents,
		maxDecisions:    cfg.MaxDecisions,
	}
}

// RecordInteraction appends an interaction, evicting oldest first when
// over cap.
func (m *CaseMemory) RecordInteraction(it Interaction) {
	if it.Timestamp.IsZero() {
		it.Timestamp = time.Now().UTC()
	}
	m.Interactions = append(m.Interactions, it)
	if len(m.Interactions) > m.maxInteractions {
		m.Interactions = m.Interactions[len(m.Interactions)-m.maxInteractions:]
	}
	if it.Intent != "" {
		m.Intents = append(m.Intents, it.Intent)
		if len(m.Intents) > m.maxIntents {
			m.Intents = m.Intents[len(m.Intents)-m.maxIntents:]
		}
	}
}

// RecordDecision appends a human decision, evicting oldest first.
func (m *CaseMemory) RecordDecision(d Decision) {
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	m.Decisions = append(m.Decisions, d)
	if len(m.Decisions) > m.maxDecisions {
		m.Decisions = m.Decisions[len(m.Decisions)-m.maxDecisions:]
	}
}

// RecordContradiction flags a disagreement with a remembered value.
func (m *CaseMemory) RecordContradiction(field, oldValue, newValue string) {
	m.Contradictions = append(m.Contradictions, Contradiction{
		Timestamp: time.Now().UTC(),
		Field:     field,
		OldValue:  oldValue,
		NewValue:  newValue,
	})
}

// LastDecision returns the most recent decision, or nil.
func (m *CaseMemory) LastDecision() *Decision {
	if len(m.Decisions) == 0 {
		return nil
	}
	return &m.Decisions[len(m.Decisions)-1]
}

// LastRejection returns the most recent rejection, or nil. The planner
// consults this to bias the next cycle toward rework.
func (m *CaseMemory) LastRejection() *Decision {
	for i := len(m.Decisions) - 1; i >= 0; i-- {
		if !m.Decisions[i].Approved {
			return &m.Decisions[i]
		}
	}
	return nil
}

// Manager owns per-case memories, persisting snapshots through the
// store after every write cycle.
type Manager struct {
	cfg   config.MemoryCfg
	db    *store.Store
	cases map[string]*CaseMemory
	mu    sync.Mutex
}

// NewManager creates a memory manager. db may be nil for an
// ephemeral (test) manager.
func NewManager(cfg config.MemoryCfg, db *store.Store) *Manager {
	return &Manager{
		cfg:   cfg,
		db:    db,
		cases: make(map[string]*CaseMemory),
	}
}

// Get returns the case memory, loading a persisted snapshot on first
// touch and creating an empty one when none exists.
func (mgr *Manager) Get(caseID string) *CaseMemory {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if m, ok := mgr.cases[caseID]; ok {
		return m
	}

	m := NewCaseMemory(caseID, mgr.cfg)
	if mgr.db != nil {
		if payload, err := mgr.db.LoadMemory(caseID); err == nil {
			if err := json.Unmarshal(payload, m); err == nil {
				m.CaseID = caseID
				m.maxInteractions = mgr.cfg.MaxInteractions
				m.maxIntents = mgr.cfg.MaxIntents
				m.maxDecisions = mgr.cfg.MaxDecisions
			}
		} else if !errors.Is(err, store.ErrNotFound) {
			// Unreadable snapshot starts fresh; the activity log still
			// has the full history.
			m = NewCaseMemory(caseID, mgr.cfg)
		}
	}
	mgr.cases[caseID] = m
	return m
}

// Persist writes the case memory snapshot through the store.
func (mgr *Manager) Persist(caseID string) error {
	mgr.mu.Lock()
	m, ok := mgr.cases[caseID]
	mgr.mu.Unlock()
	if !ok || mgr.db == nil {
		return nil
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal memory for case %s: %w", caseID, err)
	}
	return mgr.db.SaveMemory(caseID, payload)
}

// Drop removes the in-process memory for a closed case.
func (mgr *Manager) Drop(caseID string) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	delete(mgr.cases, caseID)
}

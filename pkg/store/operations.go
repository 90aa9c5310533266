package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"caseflow/pkg/proto"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SaveCase upserts the case row, appends any activity entries newer
// than what is already persisted, and stores the latest artifact pack.
// The whole write is one transaction so a half-committed cycle can
// never be observed.
func (s *Store) SaveCase(cs *proto.CaseState) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin case save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	latestPackID := ""
	if cs.LatestOutput != nil {
		latestPackID = cs.LatestOutput.PackID
	}

	_, err = tx.Exec(`
		INSERT INTO cases (
			case_id, stage, status, category_id, supplier_id, contract_id,
			estimated_value, strategic, waiting_for_human, latest_agent,
			latest_pack_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(case_id) DO UPDATE SET
			stage = excluded.stage,
			status = excluded.status,
			category_id = excluded.category_id,
			supplier_id = excluded.supplier_id,
			contract_id = excluded.contract_id,
			estimated_value = excluded.estimated_value,
			strategic = excluded.strategic,
			waiting_for_human = excluded.waiting_for_human,
			latest_agent = excluded.latest_agent,
			latest_pack_id = excluded.latest_pack_id,
			updated_at = excluded.updated_at
	`,
		cs.CaseID, string(cs.Stage), string(cs.Status), cs.CategoryID, cs.SupplierID,
		cs.ContractID, cs.EstimatedValue, boolToInt(cs.Strategic),
		boolToInt(cs.WaitingForHuman), string(cs.LatestAgentName), latestPackID,
		cs.CreatedAt, cs.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert case %s: %w", cs.CaseID, err)
	}

	if cs.LatestOutput != nil {
		if err := insertPackTx(tx, cs.LatestOutput); err != nil {
			return err
		}
	}

	// Activity entries already persisted are counted and skipped.
	var persisted int
	if err := tx.QueryRow("SELECT COUNT(*) FROM activity_log WHERE case_id = ?", cs.CaseID).Scan(&persisted); err != nil {
		return fmt.Errorf("failed to count activity for case %s: %w", cs.CaseID, err)
	}
	for i := persisted; i < len(cs.ActivityLog); i++ {
		e := &cs.ActivityLog[i]
		detail := ""
		if e.Detail != nil {
			payload, err := json.Marshal(e.Detail)
			if err != nil {
				return fmt.Errorf("failed to marshal activity detail for case %s: %w", cs.CaseID, err)
			}
			detail = string(payload)
		}
		_, err = tx.Exec(`
			INSERT INTO activity_log (case_id, ts, message, intent, agent_name, pack_id, tokens_used, cost_usd, detail)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, cs.CaseID, e.Timestamp, e.Message, string(e.Intent.Category), string(e.AgentName),
			e.PackID, e.TokensUsed, e.CostUSD, detail)
		if err != nil {
			return fmt.Errorf("failed to append activity for case %s: %w", cs.CaseID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit case save: %w", err)
	}
	return nil
}

// GetCase reconstructs a CaseState from the case row, its activity log,
// and its latest artifact pack.
func (s *Store) GetCase(caseID string) (*proto.CaseState, error) {
	cs := &proto.CaseState{CaseID: caseID}
	var stage, status, latestAgent, latestPackID string
	var strategic, waiting int

	err := s.db.QueryRow(`
		SELECT stage, status, category_id, supplier_id, contract_id,
			estimated_value, strategic, waiting_for_human, latest_agent,
			latest_pack_id, created_at, updated_at
		FROM cases WHERE case_id = ?
	`, caseID).Scan(&stage, &status, &cs.CategoryID, &cs.SupplierID, &cs.ContractID,
		&cs.EstimatedValue, &strategic, &waiting, &latestAgent, &latestPackID,
		&cs.CreatedAt, &cs.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("case %s: %w", caseID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load case %s: %w", caseID, err)
	}

	cs.Stage = proto.Stage(stage)
	cs.Status = proto.CaseStatus(status)
	cs.Strategic = strategic != 0
	cs.WaitingForHuman = waiting != 0
	cs.LatestAgentName = proto.AgentName(latestAgent)

	if latestPackID != "" {
		pack, err := s.GetPack(latestPackID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		cs.LatestOutput = pack
	}

	rows, err := s.db.Query(`
		SELECT ts, message, intent, agent_name, pack_id, tokens_used, cost_usd, detail
		FROM activity_log WHERE case_id = ? ORDER BY id
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity for case %s: %w", caseID, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var e proto.ActivityEntry
		var intent, agent, detail string
		if err := rows.Scan(&e.Timestamp, &e.Message, &intent, &agent,
			&e.PackID, &e.TokensUsed, &e.CostUSD, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		if detail != "" {
			if err := json.Unmarshal([]byte(detail), &e.Detail); err != nil {
				return nil, fmt.Errorf("failed to unmarshal activity detail: %w", err)
			}
		}
		e.Intent.Category = proto.IntentCategory(intent)
		e.AgentName = proto.AgentName(agent)
		cs.ActivityLog = append(cs.ActivityLog, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity rows: %w", err)
	}

	return cs, nil
}

// ListCaseIDs returns all known case IDs, newest first.
func (s *Store) ListCaseIDs() ([]string, error) {
	rows, err := s.db.Query("SELECT case_id FROM cases ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan case id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func insertPackTx(tx *sql.Tx, pack *proto.ArtifactPack) error {
	payload, err := json.Marshal(pack)
	if err != nil {
		return fmt.Errorf("failed to marshal pack %s: %w", pack.PackID, err)
	}
	_, err = tx.Exec(`
		INSERT INTO artifact_packs (pack_id, case_id, agent_name, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(pack_id) DO NOTHING
	`, pack.PackID, pack.CaseID, string(pack.AgentName), string(payload), pack.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert pack %s: %w", pack.PackID, err)
	}
	return nil
}

// GetPack loads one artifact pack by ID.
func (s *Store) GetPack(packID string) (*proto.ArtifactPack, error) {
	var payload string
	err := s.db.QueryRow("SELECT payload FROM artifact_packs WHERE pack_id = ?", packID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pack %s: %w", packID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pack %s: %w", packID, err)
	}

	var pack proto.ArtifactPack
	if err := json.Unmarshal([]byte(payload), &pack); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pack %s: %w", packID, err)
	}
	return &pack, nil
}

// PacksForCase returns all packs produced for a case, oldest first.
func (s *Store) PacksForCase(caseID string) ([]*proto.ArtifactPack, error) {
	rows, err := s.db.Query(
		"SELECT payload FROM artifact_packs WHERE case_id = ? ORDER BY created_at", caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load packs for case %s: %w", caseID, err)
	}
	defer func() { _ = rows.Close() }()

	var packs []*proto.ArtifactPack
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan pack row: %w", err)
		}
		var pack proto.ArtifactPack
		if err := json.Unmarshal([]byte(payload), &pack); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pack: %w", err)
		}
		packs = append(packs, &pack)
	}
	return packs, rows.Err()
}

// SaveMemory stores the serialized case memory snapshot.
func (s *Store) SaveMemory(caseID string, payload []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO memory_entries (case_id, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(case_id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, caseID, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save memory for case %s: %w", caseID, err)
	}
	return nil
}

// LoadMemory returns the serialized case memory snapshot.
func (s *Store) LoadMemory(caseID string) ([]byte, error) {
	var payload string
	err := s.db.QueryRow("SELECT payload FROM memory_entries WHERE case_id = ?", caseID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("memory for case %s: %w", caseID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load memory for case %s: %w", caseID, err)
	}
	return []byte(payload), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package store

import (
	"fmt"
	"time"
)

// Data operations back the retrieval and analytics phases of task
// execution. All queries are read-only; writes happen through the
// upsert methods or Seed.

// UpsertSupplier inserts or updates a supplier row.
func (s *Store) UpsertSupplier(sup *Supplier) error {
	_, err := s.db.Exec(`
		INSERT INTO suppliers (supplier_id, name, category_id, risk_score, on_time_rate, quality_score, incumbent)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(supplier_id) DO UPDATE SET
			name = excluded.name,
			category_id = excluded.category_id,
			risk_score = excluded.risk_score,
			on_time_rate = excluded.on_time_rate,
			quality_score = excluded.quality_score,
			incumbent = excluded.incumbent
	`, sup.SupplierID, sup.Name, sup.CategoryID, sup.RiskScore, sup.OnTimeRate,
		sup.QualityScore, boolToInt(sup.Incumbent))
	if err != nil {
		return fmt.Errorf("failed to upsert supplier %s: %w", sup.SupplierID, err)
	}
	return nil
}

// SuppliersForCategory returns suppliers serving a category.
func (s *Store) SuppliersForCategory(categoryID string) ([]Supplier, error) {
	rows, err := s.db.Query(`
		SELECT supplier_id, name, category_id, risk_score, on_time_rate, quality_score, incumbent
		FROM suppliers WHERE category_id = ? ORDER BY supplier_id
	`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query suppliers for %s: %w", categoryID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Supplier
	for rows.Next() {
		var sup Supplier
		var incumbent int
		if err := rows.Scan(&sup.SupplierID, &sup.Name, &sup.CategoryID,
			&sup.RiskScore, &sup.OnTimeRate, &sup.QualityScore, &incumbent); err != nil {
			return nil, fmt.Errorf("failed to scan supplier: %w", err)
		}
		sup.Incumbent = incumbent != 0
		out = append(out, sup)
	}
	return out, rows.Err()
}

// UpsertContract inserts or updates a contract row.
func (s *Store) UpsertContract(c *Contract) error {
	_, err := s.db.Exec(`
		INSERT INTO contracts (contract_id, supplier_id, category_id, end_date, value_usd, auto_renew)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(contract_id) DO UPDATE SET
			supplier_id = excluded.supplier_id,
			category_id = excluded.category_id,
			end_date = excluded.end_date,
			value_usd = excluded.value_usd,
			auto_renew = excluded.auto_renew
	`, c.ContractID, c.SupplierID, c.CategoryID, c.EndDate, c.ValueUSD, boolToInt(c.AutoRenew))
	if err != nil {
		return fmt.Errorf("failed to upsert contract %s: %w", c.ContractID, err)
	}
	return nil
}

// ContractsExpiringWithin returns category contracts ending before the
// cutoff, soonest first.
func (s *Store) ContractsExpiringWithin(categoryID string, cutoff time.Time) ([]Contract, error) {
	rows, err := s.db.Query(`
		SELECT contract_id, supplier_id, category_id, end_date, value_usd, auto_renew
		FROM contracts WHERE category_id = ? AND end_date <= ? ORDER BY end_date
	`, categoryID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query expiring contracts for %s: %w", categoryID, err)
	}
	defer func() { _ = rows.Close() }()
	return scanContracts(rows)
}

// ContractByID loads one contract.
func (s *Store) ContractByID(contractID string) (*Contract, error) {
	rows, err := s.db.Query(`
		SELECT contract_id, supplier_id, category_id, end_date, value_usd, auto_renew
		FROM contracts WHERE contract_id = ?
	`, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contract %s: %w", contractID, err)
	}
	defer func() { _ = rows.Close() }()

	contracts, err := scanContracts(rows)
	if err != nil {
		return nil, err
	}
	if len(contracts) == 0 {
		return nil, fmt.Errorf("contract %s: %w", contractID, ErrNotFound)
	}
	return &contracts[0], nil
}

func scanContracts(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]Contract, error) {
	var out []Contract
	for rows.Next() {
		var c Contract
		var autoRenew int
		if err := rows.Scan(&c.ContractID, &c.SupplierID, &c.CategoryID,
			&c.EndDate, &c.ValueUSD, &autoRenew); err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		c.AutoRenew = autoRenew != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertSpendRecord records one month of category spend.
func (s *Store) InsertSpendRecord(r *SpendRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO spend_records (category_id, supplier_id, month, amount_usd)
		VALUES (?, ?, ?, ?)
	`, r.CategoryID, r.SupplierID, r.Month, r.AmountUSD)
	if err != nil {
		return fmt.Errorf("failed to insert spend record: %w", err)
	}
	return nil
}

// SpendHistory returns monthly spend amounts for a category in
// chronological order.
func (s *Store) SpendHistory(categoryID string) ([]SpendRecord, error) {
	rows, err := s.db.Query(`
		SELECT category_id, supplier_id, month, amount_usd
		FROM spend_records WHERE category_id = ? ORDER BY month
	`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query spend history for %s: %w", categoryID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []SpendRecord
	for rows.Next() {
		var r SpendRecord
		if err := rows.Scan(&r.CategoryID, &r.SupplierID, &r.Month, &r.AmountUSD); err != nil {
			return nil, fmt.Errorf("failed to scan spend record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertBid attaches a supplier bid to a case.
func (s *Store) InsertBid(b *Bid) error {
	_, err := s.db.Exec(`
		INSERT INTO bids (bid_id, case_id, supplier_id, price_usd, lead_time_days, terms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(bid_id) DO UPDATE SET
			price_usd = excluded.price_usd,
			lead_time_days = excluded.lead_time_days,
			terms = excluded.terms
	`, b.BidID, b.CaseID, b.SupplierID, b.PriceUSD, b.LeadTimeDays, b.Terms)
	if err != nil {
		return fmt.Errorf("failed to insert bid %s: %w", b.BidID, err)
	}
	return nil
}

// BidsForCase returns all bids for a case, cheapest first.
func (s *Store) BidsForCase(caseID string) ([]Bid, error) {
	rows, err := s.db.Query(`
		SELECT bid_id, case_id, supplier_id, price_usd, lead_time_days, terms
		FROM bids WHERE case_id = ? ORDER BY price_usd
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids for case %s: %w", caseID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Bid
	for rows.Next() {
		var b Bid
		if err := rows.Scan(&b.BidID, &b.CaseID, &b.SupplierID, &b.PriceUSD,
			&b.LeadTimeDays, &b.Terms); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// InsertPriceBenchmark records a market reference price.
func (s *Store) InsertPriceBenchmark(p *PriceBenchmark) error {
	_, err := s.db.Exec(`
		INSERT INTO price_benchmarks (category_id, unit_price_usd, source)
		VALUES (?, ?, ?)
	`, p.CategoryID, p.UnitPriceUSD, p.Source)
	if err != nil {
		return fmt.Errorf("failed to insert price benchmark: %w", err)
	}
	return nil
}

// PriceBenchmarks returns market reference prices for a category.
func (s *Store) PriceBenchmarks(categoryID string) ([]PriceBenchmark, error) {
	rows, err := s.db.Query(`
		SELECT category_id, unit_price_usd, source
		FROM price_benchmarks WHERE category_id = ?
	`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query benchmarks for %s: %w", categoryID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []PriceBenchmark
	for rows.Next() {
		var p PriceBenchmark
		if err := rows.Scan(&p.CategoryID, &p.UnitPriceUSD, &p.Source); err != nil {
			return nil, fmt.Errorf("failed to scan benchmark: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

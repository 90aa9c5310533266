package store

import "time"

// Supplier is a row in the suppliers table.
type Supplier struct {
	SupplierID   string  `json:"supplier_id"`
	Name         string  `json:"name"`
	CategoryID   string  `json:"category_id"`
	RiskScore    float64 `json:"risk_score"`    // 0 (safe) to 1 (risky)
	OnTimeRate   float64 `json:"on_time_rate"`  // 0 to 1
	QualityScore float64 `json:"quality_score"` // 0 to 10
	Incumbent    bool    `json:"incumbent"`
}

// Contract is a row in the contracts table.
type Contract struct {
	ContractID string    `json:"contract_id"`
	SupplierID string    `json:"supplier_id"`
	CategoryID string    `json:"category_id"`
	EndDate    time.Time `json:"end_date"`
	ValueUSD   float64   `json:"value_usd"`
	AutoRenew  bool      `json:"auto_renew"`
}

// SpendRecord is one month of category spend.
type SpendRecord struct {
	CategoryID string  `json:"category_id"`
	SupplierID string  `json:"supplier_id"`
	Month      string  `json:"month"` // YYYY-MM
	AmountUSD  float64 `json:"amount_usd"`
}

// Bid is a supplier bid attached to a case.
type Bid struct {
	BidID        string  `json:"bid_id"`
	CaseID       string  `json:"case_id"`
	SupplierID   string  `json:"supplier_id"`
	PriceUSD     float64 `json:"price_usd"`
	LeadTimeDays int     `json:"lead_time_days"`
	Terms        string  `json:"terms"`
}

// PriceBenchmark is a market reference price for a category.
type PriceBenchmark struct {
	CategoryID   string  `json:"category_id"`
	UnitPriceUSD float64 `json:"unit_price_usd"`
	Source       string  `json:"source"`
}

package store

import (
	"fmt"
	"time"
)

// Seed loads a small procurement dataset for the CLI demo and tests:
// one laptop category with three suppliers, an expiring incumbent
// contract, a year of spend with one anomalous month, case bids, and
// market benchmarks.
func (s *Store) Seed() error {
	suppliers := []Supplier{
		{SupplierID: "SUP-001", Name: "Northfield Technology", CategoryID: "CAT-IT-HW", RiskScore: 0.2, OnTimeRate: 0.96, QualityScore: 8.7, Incumbent: true},
		{SupplierID: "SUP-002", Name: "Atlas Components", CategoryID: "CAT-IT-HW", RiskScore: 0.35, OnTimeRate: 0.91, QualityScore: 7.9},
		{SupplierID: "SUP-003", Name: "Meridian Supply Co", CategoryID: "CAT-IT-HW", RiskScore: 0.6, OnTimeRate: 0.82, QualityScore: 6.4},
	}
	for i := range suppliers {
		if err := s.UpsertSupplier(&suppliers[i]); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	contracts := []Contract{
		{ContractID: "CTR-1001", SupplierID: "SUP-001", CategoryID: "CAT-IT-HW",
			EndDate: now.AddDate(0, 2, 0), ValueUSD: 240000, AutoRenew: false},
		{ContractID: "CTR-1002", SupplierID: "SUP-002", CategoryID: "CAT-IT-HW",
			EndDate: now.AddDate(1, 3, 0), ValueUSD: 85000, AutoRenew: true},
	}
	for i := range contracts {
		if err := s.UpsertContract(&contracts[i]); err != nil {
			return err
		}
	}

	// Twelve months of spend around 20k with one spike month.
	base := 20000.0
	for i := 11; i >= 0; i-- {
		month := now.AddDate(0, -i, 0).Format("2006-01")
		amount := base + float64((11-i)%5)*300
		if i == 2 {
			amount = base * 2.4
		}
		rec := SpendRecord{CategoryID: "CAT-IT-HW", SupplierID: "SUP-001", Month: month, AmountUSD: amount}
		if err := s.InsertSpendRecord(&rec); err != nil {
			return err
		}
	}

	benchmarks := []PriceBenchmark{
		{CategoryID: "CAT-IT-HW", UnitPriceUSD: 1180, Source: "market-index"},
		{CategoryID: "CAT-IT-HW", UnitPriceUSD: 1240, Source: "peer-survey"},
		{CategoryID: "CAT-IT-HW", UnitPriceUSD: 1205, Source: "last-rfx"},
	}
	for i := range benchmarks {
		if err := s.InsertPriceBenchmark(&benchmarks[i]); err != nil {
			return err
		}
	}

	return nil
}

// SeedBidsForCase attaches demo bids from the seeded suppliers to an
// existing case.
func (s *Store) SeedBidsForCase(caseID string) error {
	bids := []Bid{
		{BidID: fmt.Sprintf("BID-%s-1", caseID), CaseID: caseID, SupplierID: "SUP-001", PriceUSD: 1150, LeadTimeDays: 21, Terms: "net 45, 3yr warranty"},
		{BidID: fmt.Sprintf("BID-%s-2", caseID), CaseID: caseID, SupplierID: "SUP-002", PriceUSD: 1095, LeadTimeDays: 35, Terms: "net 30, 1yr warranty"},
		{BidID: fmt.Sprintf("BID-%s-3", caseID), CaseID: caseID, SupplierID: "SUP-003", PriceUSD: 1580, LeadTimeDays: 14, Terms: "net 15, no warranty"},
	}
	for i := range bids {
		if err := s.InsertBid(&bids[i]); err != nil {
			return err
		}
	}
	return nil
}

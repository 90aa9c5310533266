package task

import "caseflow/pkg/store"

// Typed accessors for store rows earlier tasks left in the data bag.

func contractsFrom(tc *Context, key string) []store.Contract {
	v, _ := fromData[[]store.Contract](tc, key)
	return v
}

func contractFrom(tc *Context) (store.Contract, bool) {
	return fromData[store.Contract](tc, "contract")
}

func suppliersFrom(tc *Context) []store.Supplier {
	v, _ := fromData[[]store.Supplier](tc, "category_suppliers")
	return v
}

func spendFrom(tc *Context) []store.SpendRecord {
	v, _ := fromData[[]store.SpendRecord](tc, "spend_history")
	return v
}

func bidsFrom(tc *Context) []store.Bid {
	v, _ := fromData[[]store.Bid](tc, "bids")
	return v
}

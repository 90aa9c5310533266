package retriever

import "context"

// BuiltinCorpus returns the reference documents shipped with the
// engine: sourcing policy, RFx templates, negotiation and contracting
// guidance. The CLI and tests index these at startup.
func BuiltinCorpus() []Document {
	return []Document{
		{
			ID:    "DOC-POLICY-001",
			Title: "Sourcing pathway policy",
			Kind:  "policy",
			Content: "Sourcing events above 500000 USD or flagged strategic follow the " +
				"strategic sourcing pathway with full market analysis. Events above " +
				"50000 USD use the competitive bid pathway with at least three " +
				"qualified suppliers. Smaller or renewal events may use the " +
				"simplified pathway and proceed directly to negotiation with the " +
				"incumbent supplier.",
		},
		{
			ID:    "DOC-POLICY-002",
			Title: "Supplier risk policy",
			Kind:  "policy",
			Content: "Suppliers with a risk score above 0.5 require a documented " +
				"mitigation plan before award. On-time delivery below 85 percent " +
				"over the trailing year disqualifies a supplier from sole-source " +
				"awards. Incumbent performance must be reviewed before renewal.",
		},
		{
			ID:    "DOC-TMPL-RFP",
			Title: "RFP template",
			Kind:  "template",
			Content: "Request for proposal sections: company background, scope of " +
				"work, technical requirements, evaluation criteria and weights, " +
				"pricing schedule, service levels, submission instructions, " +
				"question and answer process, timeline with award date.",
		},
		{
			ID:    "DOC-TMPL-RFQ",
			Title: "RFQ template",
			Kind:  "template",
			Content: "Request for quotation sections: item specifications, " +
				"quantities, delivery requirements, unit pricing table, payment " +
				"terms, validity period, submission deadline.",
		},
		{
			ID:    "DOC-GUIDE-NEG",
			Title: "Negotiation guidance",
			Kind:  "guidance",
			Content: "Anchor on the market benchmark price, not the opening bid. " +
				"Prepare a target price and a walk-away fallback before the first " +
				"session. Trade payment terms and volume commitments for unit " +
				"price. Multi-year terms justify 5 to 12 percent discounts. " +
				"Document every concession.",
		},
		{
			ID:    "DOC-GUIDE-CONTRACT",
			Title: "Contracting guidance",
			Kind:  "guidance",
			Content: "Key terms to verify before signature: pricing and indexation, " +
				"term and renewal, termination for convenience notice period, " +
				"service levels and credits, liability caps, data protection, " +
				"assignment. Deviations from negotiated positions must be listed " +
				"in the alignment summary.",
		},
		{
			ID:    "DOC-GUIDE-IMPL",
			Title: "Implementation guidance",
			Kind:  "guidance",
			Content: "Rollout checklist: supplier onboarding, catalog and price " +
				"list load, purchase order routing, stakeholder communication, " +
				"savings baseline capture, quarterly business review schedule. " +
				"Track realized savings against the negotiated baseline monthly.",
		},
	}
}

// IndexBuiltinCorpus indexes the builtin documents into r.
func IndexBuiltinCorpus(ctx context.Context, r Retriever) error {
	return r.Index(ctx, BuiltinCorpus())
}

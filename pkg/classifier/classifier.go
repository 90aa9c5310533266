// Package classifier turns raw user text plus case context into a
// structured intent. Deterministic pattern rules run first; the
// generation backend is consulted only when the rules are unsure, and
// those calls are cached so repeated messages never pay twice.
package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"caseflow/pkg/config"
	"caseflow/pkg/gen"
	"caseflow/pkg/logx"
	"caseflow/pkg/proto"
)

type Classifier struct {
	backend gen.Generator
	model   config.ModelCfg
	cfg     config.ClassifierCfg
	cache   *lru.Cache[string, proto.Intent]
	counter *gen.TokenCounter
	log     *logx.Logger
}

// New builds a classifier. backend may be nil, in which case every
// classification is rule-only and low-confidence results are marked
// degraded. model carries the backend's pricing for cost attribution.
func New(backend gen.Generator, model config.ModelCfg, cfg config.ClassifierCfg) *Classifier {
	size := cfg.CacheSize
	if size <= 0 {
		size = 256
	}
	cache, _ := lru.New[string, proto.Intent](size)
	counter, err := gen.NewTokenCounter()
	if err != nil {
		counter = nil
	}
	return &Classifier{
		backend: backend,
		model:   model,
		cfg:     cfg,
		cache:   cache,
		counter: counter,
		log:     logx.NewLogger("classifier"),
	}
}

// Classify never returns an error. The rule result is accepted outright
// at or above the rule threshold; below the LLM-only threshold the
// backend answer replaces it; in between, the higher-confidence result
// wins with ties going to the rules. A backend failure falls back to
// the rule result flagged as degraded.
func (c *Classifier) Classify(ctx context.Context, message string, cc Context) proto.Intent {
	rule := ruleClassify(message, cc)
	if rule.Category == proto.IntentDecide || rule.Confidence < c.cfg.RuleAcceptThreshold {
		rule = twoLevel(message, cc, rule)
	}

	if rule.Confidence >= c.cfg.RuleAcceptThreshold {
		c.log.Debug("rule classified %q as %s (%.2f)", truncateMsg(message), rule.Category, rule.Confidence)
		return rule
	}

	llm, err := c.llmFallback(ctx, message, cc)
	if err != nil {
		c.log.Warn("backend classification failed, using rule result: %v", err)
		rule.Degraded = true
		return rule
	}

	if rule.Confidence < c.cfg.LLMOnlyThreshold {
		c.log.Debug("rule confidence %.2f below floor, using backend result %s (%.2f)",
			rule.Confidence, llm.Category, llm.Confidence)
		return llm
	}
	if llm.Confidence > rule.Confidence {
		llm.Source = proto.SourceMerged
		return llm
	}
	return rule
}

func (c *Classifier) llmFallback(ctx context.Context, message string, cc Context) (proto.Intent, error) {
	if c.backend == nil {
		return proto.Intent{}, gen.ErrBackendUnavailable
	}

	key := cacheKey(message, cc)
	if hit, ok := c.cache.Get(key); ok {
		return hit, nil
	}

	in, err := c.llmClassify(ctx, message, cc)
	if err != nil {
		return proto.Intent{}, err
	}
	c.cache.Add(key, in)
	return in, nil
}

// cacheKey hashes the normalized message together with the context
// fields that influence classification.
func cacheKey(message string, cc Context) string {
	norm := strings.Join(strings.Fields(strings.ToLower(message)), " ")
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%t", norm, cc.Stage, cc.Status, cc.HasOutput)))
	return hex.EncodeToString(sum[:])
}

func truncateMsg(s string) string {
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

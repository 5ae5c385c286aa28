// Package classify implements the admission classifier: the binary
// accept/reject decision over raw notification text that gates which
// events count as genuine incoming payments. Classification rejections
// are values, never errors.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/camiloreynaga/yape-notifier-sub000/internal/extract"
)

// ReasonCode explains a classification outcome.
type ReasonCode string

const (
	ReasonAccepted                  ReasonCode = "accepted"
	ReasonExclusionKeywordThreshold ReasonCode = "exclusion_keyword_threshold"
	ReasonExclusionPattern          ReasonCode = "exclusion_pattern"
	ReasonMissingPaymentAction      ReasonCode = "missing_payment_action"
	ReasonMissingOrInvalidAmount    ReasonCode = "missing_or_invalid_amount"
	ReasonAmountOutOfRange          ReasonCode = "amount_out_of_range"
	ReasonNoPatternMatched          ReasonCode = "no_pattern_matched"
)

// Outcome is the single, complete result of classifying one event.
type Outcome struct {
	Accepted bool
	Reason   ReasonCode
}

// Config holds the structural validation thresholds.
type Config struct {
	// MinAmount and MaxAmount are exclusive bounds: an admitted amount
	// satisfies MinAmount < amount < MaxAmount.
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal

	// MinBodyLength rejects terse bodies that cannot carry a payment
	// sentence. Measured in runes on the trimmed body.
	MinBodyLength int
}

type compiledApp struct {
	appID    string
	patterns []*regexp.Regexp
}

// Classifier applies the canonical rule order: keyword threshold,
// exclusion patterns, inclusion patterns with structural validation,
// then the amount-only fallback. It is immutable after construction and
// safe for concurrent use.
type Classifier struct {
	cfg               Config
	exclusionKeywords []string
	exclusionPatterns []*regexp.Regexp
	apps              []compiledApp
	actionPhrases     []string
	amountPattern     *regexp.Regexp
}

// New compiles the rule set. A malformed regex is a configuration error
// and fails construction.
func New(rules RuleSet, cfg Config) (*Classifier, error) {
	if cfg.MinAmount.GreaterThanOrEqual(cfg.MaxAmount) {
		return nil, fmt.Errorf("amount bounds inverted: min %s, max %s", cfg.MinAmount, cfg.MaxAmount)
	}

	c := &Classifier{cfg: cfg}

	for _, kw := range rules.ExclusionKeywords {
		c.exclusionKeywords = append(c.exclusionKeywords, strings.ToLower(kw))
	}

	for _, raw := range rules.ExclusionPatterns {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("compile exclusion pattern %q: %w", raw, err)
		}
		c.exclusionPatterns = append(c.exclusionPatterns, re)
	}

	for _, app := range rules.Apps {
		ca := compiledApp{appID: app.AppID}
		for _, raw := range app.InclusionPatterns {
			re, err := regexp.Compile(raw)
			if err != nil {
				return nil, fmt.Errorf("compile inclusion pattern %q for app %s: %w", raw, app.AppID, err)
			}
			ca.patterns = append(ca.patterns, re)
		}
		c.apps = append(c.apps, ca)
	}

	for _, phrase := range rules.ActionPhrases {
		c.actionPhrases = append(c.actionPhrases, strings.ToLower(phrase))
	}

	amountRe, err := regexp.Compile(rules.AmountPattern)
	if err != nil {
		return nil, fmt.Errorf("compile amount pattern %q: %w", rules.AmountPattern, err)
	}
	c.amountPattern = amountRe

	return c, nil
}

// Classify decides whether the notification text represents a genuine
// incoming payment. amount, when non-nil, is an externally pre-parsed
// amount used by the "amount known, pattern unknown" admission path.
// Keyword and pattern scans run over body+title; amount extraction runs
// over the body only.
func (c *Classifier) Classify(title, body string, amount *decimal.Decimal) Outcome {
	if strings.TrimSpace(body) == "" {
		return Outcome{Reason: ReasonNoPatternMatched}
	}

	scanText := strings.ToLower(body + " " + title)

	if c.countExclusionKeywords(scanText) >= 2 {
		return Outcome{Reason: ReasonExclusionKeywordThreshold}
	}

	for _, re := range c.exclusionPatterns {
		if re.MatchString(scanText) {
			return Outcome{Reason: ReasonExclusionPattern}
		}
	}

	for _, app := range c.apps {
		for _, re := range app.patterns {
			if re.MatchString(scanText) {
				return c.validateStructure(body, amount)
			}
		}
	}

	// Amount known, pattern unknown: structural validation with the
	// supplied amount standing in for a regex-extracted one.
	if amount != nil {
		return c.validateStructure(body, amount)
	}

	return Outcome{Reason: ReasonNoPatternMatched}
}

// validateStructure is the shared gate behind both the inclusion-match
// path and the amount-only fallback. It is also exposed through Audit
// for asynchronous re-checks of already persisted records.
func (c *Classifier) validateStructure(body string, supplied *decimal.Decimal) Outcome {
	trimmed := strings.TrimSpace(body)
	if len([]rune(trimmed)) < c.cfg.MinBodyLength {
		return Outcome{Reason: ReasonMissingPaymentAction}
	}

	lower := strings.ToLower(trimmed)
	if !c.hasActionPhrase(lower) {
		return Outcome{Reason: ReasonMissingPaymentAction}
	}

	amount, ok := c.extractAmount(body)
	if !ok {
		if supplied == nil {
			return Outcome{Reason: ReasonMissingOrInvalidAmount}
		}
		amount = *supplied
	}

	if !amount.GreaterThan(c.cfg.MinAmount) || !amount.LessThan(c.cfg.MaxAmount) {
		return Outcome{Reason: ReasonAmountOutOfRange}
	}

	return Outcome{Accepted: true, Reason: ReasonAccepted}
}

// Audit re-runs structural validation against an already persisted
// record. It is the non-blocking server-side check of the ingestion
// contract: callable for audits and async re-checks, never a gate.
func (c *Classifier) Audit(body string, amount *decimal.Decimal) Outcome {
	return c.validateStructure(body, amount)
}

func (c *Classifier) countExclusionKeywords(scanText string) int {
	count := 0
	for _, kw := range c.exclusionKeywords {
		if strings.Contains(scanText, kw) {
			count++
		}
	}
	return count
}

func (c *Classifier) hasActionPhrase(lowerBody string) bool {
	for _, phrase := range c.actionPhrases {
		if strings.Contains(lowerBody, phrase) {
			return true
		}
	}
	return false
}

// extractAmount finds the first currency-amount token in the body. A
// token whose digits fail to parse counts as no token at all.
func (c *Classifier) extractAmount(body string) (decimal.Decimal, bool) {
	m := c.amountPattern.FindStringSubmatch(body)
	if m == nil {
		return decimal.Decimal{}, false
	}

	amount, err := extract.ParseAmount(m[2])
	if err != nil {
		return decimal.Decimal{}, false
	}
	if amount.Sign() <= 0 {
		return decimal.Decimal{}, false
	}

	return amount, true
}

// Package extract turns accepted notification text into structured
// payment facts: sender, amount, and normalized currency code.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Facts are the structured payment facts pulled out of freeform text.
type Facts struct {
	Sender       string
	Amount       decimal.Decimal
	CurrencyCode string
}

// AppPatterns declares the extraction regexes for one payment app.
// Every pattern must capture exactly three groups: sender, currency
// token, amount digits.
type AppPatterns struct {
	AppID        string
	PackageNames []string
	Patterns     []string
}

// PatternTable is the ordered extraction configuration: app families
// first, the generic catch-all (empty package list) last.
type PatternTable []AppPatterns

// DefaultPatternTable returns the built-in extraction patterns.
func DefaultPatternTable() PatternTable {
	return PatternTable{
		{
			AppID:        "yape",
			PackageNames: []string{"com.bcp.innovacxion.yapeapp"},
			Patterns: []string{
				`(?i)([\p{L}][\p{L} .'-]+?)\s+te\s+envi[oó]\s+un\s+pago\s+por\s+(s/\.?|us\$|\$)\s*` + AmountToken,
			},
		},
		{
			AppID:        "plin",
			PackageNames: []string{"pe.interbank.plin"},
			Patterns: []string{
				`(?i)([\p{L}][\p{L} .'-]+?)\s+te\s+envi[oó]\s+(s/\.?|us\$|\$)\s*` + AmountToken,
			},
		},
		{
			AppID:        "bcp",
			PackageNames: []string{"com.bcp.bank.bcp"},
			Patterns: []string{
				`(?i)([\p{L}][\p{L} .'-]+?)\s+te\s+transfiri[oó]\s+(s/\.?|us\$|\$)\s*` + AmountToken,
			},
		},
		{
			AppID: "generic",
			Patterns: []string{
				`(?i)([\p{L}\d][\p{L}\d .'-]+?)\s+sent\s+you\s+a\s+payment\s+of\s+(s/\.?|us\$|\$|€)\s*` + AmountToken,
				`(?i)([\p{L}\d][\p{L}\d .'-]+?)\s+te\s+envi[oó]\s+un\s+pago\s+de\s+(s/\.?|us\$|\$|€)\s*` + AmountToken,
			},
		},
	}
}

type compiledApp struct {
	appID    string
	packages map[string]struct{}
	patterns []*regexp.Regexp
}

func (a *compiledApp) matchesHint(hint string) bool {
	if hint == "" {
		return false
	}
	if strings.EqualFold(hint, a.appID) {
		return true
	}
	_, ok := a.packages[strings.ToLower(hint)]
	return ok
}

// Extractor applies the pattern table in priority order: the family
// matching the source-app hint first, then the remaining families in
// declaration order. It is a total function: extraction never fails,
// it only comes back empty. Safe for concurrent use.
type Extractor struct {
	apps       []compiledApp
	currencies *CurrencyTable
	logger     *zap.Logger
}

// NewExtractor compiles the pattern table. Patterns with a capture
// count other than three are configuration errors.
func NewExtractor(table PatternTable, currencies *CurrencyTable, logger *zap.Logger) (*Extractor, error) {
	e := &Extractor{currencies: currencies, logger: logger}

	for _, app := range table {
		ca := compiledApp{
			appID:    app.AppID,
			packages: make(map[string]struct{}, len(app.PackageNames)),
		}
		for _, pkg := range app.PackageNames {
			ca.packages[strings.ToLower(pkg)] = struct{}{}
		}
		for _, raw := range app.Patterns {
			re, err := regexp.Compile(raw)
			if err != nil {
				return nil, fmt.Errorf("compile extraction pattern %q for app %s: %w", raw, app.AppID, err)
			}
			if re.NumSubexp() != 3 {
				return nil, fmt.Errorf("extraction pattern %q for app %s must capture sender, currency, amount", raw, app.AppID)
			}
			ca.patterns = append(ca.patterns, re)
		}
		e.apps = append(e.apps, ca)
	}

	return e, nil
}

// Extract attempts the ordered pattern matches against the body, then
// the title. Returns the facts and true on the first successful match,
// or nil and false when nothing matched.
func (e *Extractor) Extract(title, body, sourceAppHint string) (*Facts, bool) {
	for _, app := range e.orderedApps(sourceAppHint) {
		for _, re := range app.patterns {
			for _, text := range []string{body, title} {
				if facts, ok := e.tryPattern(re, text); ok {
					e.logger.Debug("payment facts extracted",
						zap.String("app_id", app.appID),
						zap.String("sender", facts.Sender),
						zap.String("currency_code", facts.CurrencyCode),
					)
					return facts, true
				}
			}
		}
	}

	return nil, false
}

// orderedApps moves the hint-matching family to the front while keeping
// the declared order for everything else.
func (e *Extractor) orderedApps(hint string) []*compiledApp {
	ordered := make([]*compiledApp, 0, len(e.apps))
	var rest []*compiledApp
	for i := range e.apps {
		app := &e.apps[i]
		if app.matchesHint(hint) {
			ordered = append(ordered, app)
		} else {
			rest = append(rest, app)
		}
	}
	return append(ordered, rest...)
}

// tryPattern applies one regex. A match whose amount digits fail to
// parse counts as a miss for this pattern, not a hard failure.
func (e *Extractor) tryPattern(re *regexp.Regexp, text string) (*Facts, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}

	amount, err := ParseAmount(m[3])
	if err != nil || amount.Sign() <= 0 {
		return nil, false
	}

	return &Facts{
		Sender:       strings.TrimSpace(m[1]),
		Amount:       amount,
		CurrencyCode: e.currencies.Normalize(m[2]),
	}, true
}

package extract

import (
	"strings"

	"go.uber.org/zap"

	"github.com/camiloreynaga/yape-notifier-sub000/internal/metrics"
)

// CurrencyTable maps raw currency tokens (symbols or words) to ISO 4217
// codes. Unknown tokens resolve to the configured default code and are
// logged; they are never an error.
type CurrencyTable struct {
	byToken     map[string]string
	defaultCode string
	logger      *zap.Logger
}

// NewCurrencyTable builds the static lookup table.
func NewCurrencyTable(defaultCode string, logger *zap.Logger) *CurrencyTable {
	return &CurrencyTable{
		byToken: map[string]string{
			"s/":      "PEN",
			"s/.":     "PEN",
			"sol":     "PEN",
			"soles":   "PEN",
			"pen":     "PEN",
			"$":       "USD",
			"us$":     "USD",
			"usd":     "USD",
			"dollar":  "USD",
			"dollars": "USD",
			"dólar":   "USD",
			"dólares": "USD",
			"€":       "EUR",
			"eur":     "EUR",
			"euro":    "EUR",
			"euros":   "EUR",
		},
		defaultCode: defaultCode,
		logger:      logger,
	}
}

// Normalize maps a raw currency token to its ISO 4217 code. The lookup
// is case-insensitive and ignores surrounding whitespace.
func (t *CurrencyTable) Normalize(symbolOrWord string) string {
	token := strings.ToLower(strings.TrimSpace(symbolOrWord))
	if code, ok := t.byToken[token]; ok {
		return code
	}

	t.logger.Warn("unknown currency token, using default",
		zap.String("token", symbolOrWord),
		zap.String("default_code", t.defaultCode),
	)
	metrics.RecordUnknownCurrency(token)

	return t.defaultCode
}

// DefaultCode returns the configured fallback ISO code.
func (t *CurrencyTable) DefaultCode() string {
	return t.defaultCode
}

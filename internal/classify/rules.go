package classify

import "github.com/camiloreynaga/yape-notifier-sub000/internal/extract"

// AppRules declares the inclusion patterns for one supported payment app.
// Patterns are tried in declaration order; the first match wins for the
// whole rule set, so more specific apps must be declared before the
// generic fallback.
type AppRules struct {
	// AppID names the payment app family (e.g. "yape", "plin"). The
	// generic fallback uses "generic" and an empty package list.
	AppID string

	// PackageNames lists the Android packages this family covers.
	PackageNames []string

	// InclusionPatterns are the admission regexes for this family.
	InclusionPatterns []string
}

// RuleSet is the full, ordered rule configuration for the admission
// classifier. It is plain data so deployments can load their own set at
// startup; DefaultRuleSet covers the Peruvian payment apps this service
// was built around plus an English generic family.
type RuleSet struct {
	// ExclusionKeywords are case-insensitive substrings. Two or more
	// distinct hits across title+body reject the event outright.
	ExclusionKeywords []string

	// ExclusionPatterns are structural ad/reminder phrasings, tried in
	// order before any inclusion pattern.
	ExclusionPatterns []string

	// Apps holds the per-app inclusion families, most specific first.
	Apps []AppRules

	// ActionPhrases are the payment-action phrases structural
	// validation requires (case-insensitive substrings).
	ActionPhrases []string

	// AmountPattern extracts the currency token and amount digits from
	// the body. Group 1 is the currency token, group 2 the digits.
	AmountPattern string
}

// DefaultRuleSet returns the built-in rule configuration.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		ExclusionKeywords: []string{
			// Promotions and advertising
			"descuento", "dscto", "promo", "promoción", "cupón", "oferta",
			"sorteo", "gana ", "ganador", "premio", "cashback", "reward",
			"exclusivo", "invita", "código promocional", "suscríbete",
			"discount", "% off", "off only", "up to", "at checkout",
			"limited time", "free shipping",
			// Reminders and billing
			"recordatorio", "recuerda", "no te olvides", "pago pendiente",
			"paga tu", "tu recibo", "vence", "vencimiento", "renueva",
			"reminder", "your bill",
			// Balance inquiries and FX promos
			"saldo disponible", "consulta tu saldo", "tipo de cambio",
			"dólar compra", "dólar venta", "compra dólares",
			// Fine print
			"términos y condiciones", "aplican restricciones",
			"solo por hoy", "only today", "recarga",
		},
		ExclusionPatterns: []string{
			`(?i)descuento\s+hoy`,
			`(?i)\d+\s*%\s*de\s+descuento`,
			`(?i)hasta\s+\d+\s*%`,
			`(?i)up\s+to\s+\$?\s*\d+(?:\.\d+)?\s+off`,
			`(?i)no\s+dejes\s+(?:que\s+)?(?:venza|expire)`,
			`(?i)mejor\s+tipo\s+de\s+cambio`,
			`(?i)cr[eé]dito\s+pre\s*-?\s*aprobado`,
			`(?i)gana\s+puntos`,
		},
		Apps: []AppRules{
			{
				AppID:        "yape",
				PackageNames: []string{"com.bcp.innovacxion.yapeapp"},
				InclusionPatterns: []string{
					`(?i)te\s+envi[oó]\s+un\s+pago\s+por`,
					`(?i)¡?\s*confirmaci[oó]n\s+de\s+pago`,
				},
			},
			{
				AppID:        "plin",
				PackageNames: []string{"pe.interbank.plin"},
				InclusionPatterns: []string{
					`(?i)te\s+plinearon`,
					`(?i)te\s+envi[oó]\s+s/`,
				},
			},
			{
				AppID:        "bcp",
				PackageNames: []string{"com.bcp.bank.bcp"},
				InclusionPatterns: []string{
					`(?i)te\s+transfiri[oó]`,
					`(?i)transferencia\s+recibida`,
				},
			},
			{
				AppID:        "interbank",
				PackageNames: []string{"pe.com.interbank.mobilebanking"},
				InclusionPatterns: []string{
					`(?i)has\s+recibido\s+una\s+transferencia`,
				},
			},
			{
				AppID: "generic",
				InclusionPatterns: []string{
					`(?i)sent\s+you\s+a\s+payment\s+of`,
					`(?i)you\s+received\s+a\s+payment`,
					`(?i)te\s+envi[oó]\s+un\s+pago`,
				},
			},
		},
		ActionPhrases: []string{
			"sent you", "transferred you", "you received",
			"te envió", "te envio", "te transfirió", "te transfirio",
			"te pagó", "te pago", "te plinearon",
			"recibiste un pago", "pago recibido",
			"has recibido una transferencia", "transferencia recibida",
		},
		AmountPattern: `(?i)(s/\.?|us\$|\$|€)\s*` + extract.AmountToken,
	}
}

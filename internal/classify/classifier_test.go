package classify

import (
	"testing"

	"github.com/shopspring/decimal"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := New(DefaultRuleSet(), Config{
		MinAmount:     decimal.RequireFromString("0.01"),
		MaxAmount:     decimal.RequireFromString("1000000"),
		MinBodyLength: 12,
	})
	if err != nil {
		t.Fatalf("failed to build classifier: %v", err)
	}
	return c
}

func TestClassify_AcceptsGenericPaymentBody(t *testing.T) {
	c := newTestClassifier(t)

	out := c.Classify("", "JOHN DOE sent you a payment of S/ 50.00", nil)
	if !out.Accepted {
		t.Fatalf("expected accepted, got reason %s", out.Reason)
	}
	if out.Reason != ReasonAccepted {
		t.Errorf("expected reason %s, got %s", ReasonAccepted, out.Reason)
	}
}

func TestClassify_AcceptsYapeBody(t *testing.T) {
	c := newTestClassifier(t)

	out := c.Classify("Yape", "¡Confirmación de Pago! MARIA LOPEZ te envió un pago por S/ 120.50", nil)
	if !out.Accepted {
		t.Fatalf("expected accepted, got reason %s", out.Reason)
	}
}

func TestClassify_RejectsAdvertisement(t *testing.T) {
	c := newTestClassifier(t)

	out := c.Classify("", "Up to $150 off only today at checkout", nil)
	if out.Accepted {
		t.Fatal("expected rejection for advertisement body")
	}
	if out.Reason != ReasonExclusionKeywordThreshold && out.Reason != ReasonExclusionPattern {
		t.Errorf("expected an exclusion reason, got %s", out.Reason)
	}
}

func TestClassify_KeywordThresholdNeedsTwoHits(t *testing.T) {
	c := newTestClassifier(t)

	// One keyword alone must not trigger the threshold rule; the body
	// still falls through to the pattern rules.
	out := c.Classify("", "PEDRO RUIZ sent you a payment of S/ 30.00 reminder", nil)
	if out.Reason == ReasonExclusionKeywordThreshold {
		t.Fatal("single keyword hit must not trip the threshold")
	}
}

func TestClassify_RejectsExclusionPattern(t *testing.T) {
	c := newTestClassifier(t)

	out := c.Classify("", "Aprovecha 50% de descuento en tu tienda favorita este fin de semana", nil)
	if out.Accepted {
		t.Fatal("expected rejection")
	}
	if out.Reason != ReasonExclusionPattern && out.Reason != ReasonExclusionKeywordThreshold {
		t.Errorf("expected exclusion reason, got %s", out.Reason)
	}
}

func TestClassify_EmptyBodyAlwaysRejects(t *testing.T) {
	c := newTestClassifier(t)

	amount := decimal.RequireFromString("50")
	for _, body := range []string{"", "   "} {
		out := c.Classify("Yape", body, &amount)
		if out.Accepted {
			t.Fatalf("empty body %q must reject", body)
		}
		if out.Reason != ReasonNoPatternMatched {
			t.Errorf("expected %s for empty body, got %s", ReasonNoPatternMatched, out.Reason)
		}
	}
}

func TestClassify_NoPatternNoAmountRejects(t *testing.T) {
	c := newTestClassifier(t)

	out := c.Classify("", "Tu clave dinámica es 482910, no la compartas con nadie", nil)
	if out.Accepted {
		t.Fatal("expected rejection for informational message")
	}
	if out.Reason != ReasonNoPatternMatched {
		t.Errorf("expected %s, got %s", ReasonNoPatternMatched, out.Reason)
	}
}

func TestClassify_AmountOnlyAdmissionPath(t *testing.T) {
	c := newTestClassifier(t)

	// No inclusion pattern matches ("abonó" is not in the rule set)
	// but the action phrase and a supplied amount admit the event.
	amount := decimal.RequireFromString("75.00")
	out := c.Classify("", "LUIS TORRES te pagó, revisa tu cuenta del banco", &amount)
	if !out.Accepted {
		t.Fatalf("expected amount-only admission, got reason %s", out.Reason)
	}
}

func TestClassify_MissingPaymentAction(t *testing.T) {
	c := newTestClassifier(t)

	amount := decimal.RequireFromString("75.00")
	out := c.Classify("", "Operación procesada correctamente en tu aplicación", &amount)
	if out.Accepted {
		t.Fatal("expected rejection without payment action phrase")
	}
	if out.Reason != ReasonMissingPaymentAction {
		t.Errorf("expected %s, got %s", ReasonMissingPaymentAction, out.Reason)
	}
}

func TestClassify_TerseBodyRejects(t *testing.T) {
	c := newTestClassifier(t)

	amount := decimal.RequireFromString("50")
	out := c.Classify("", "te envió", &amount)
	if out.Accepted {
		t.Fatal("expected rejection for terse body")
	}
	if out.Reason != ReasonMissingPaymentAction {
		t.Errorf("expected %s, got %s", ReasonMissingPaymentAction, out.Reason)
	}
}

func TestClassify_MissingAmount(t *testing.T) {
	c := newTestClassifier(t)

	out := c.Classify("", "ROSA DIAZ sent you a payment of: check the app for details", nil)
	if out.Accepted {
		t.Fatal("expected rejection without amount token")
	}
	if out.Reason != ReasonMissingOrInvalidAmount {
		t.Errorf("expected %s, got %s", ReasonMissingOrInvalidAmount, out.Reason)
	}
}

func TestClassify_AmountBoundsAreExclusive(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name string
		body string
		want ReasonCode
	}{
		{"at lower bound", "ANA LIMA sent you a payment of S/ 0.01", ReasonAmountOutOfRange},
		{"just above lower bound", "ANA LIMA sent you a payment of S/ 0.02", ReasonAccepted},
		{"below upper bound", "ANA LIMA sent you a payment of S/ 999999.99", ReasonAccepted},
		{"at upper bound", "ANA LIMA sent you a payment of S/ 1000000", ReasonAmountOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := c.Classify("", tt.body, nil)
			if out.Reason != tt.want {
				t.Errorf("body %q: expected %s, got %s", tt.body, tt.want, out.Reason)
			}
		})
	}
}

func TestClassify_ThousandsSeparatorNotTruncated(t *testing.T) {
	c := newTestClassifier(t)

	// A comma-grouped amount at the upper bound must be read whole.
	// Cutting it at the first comma would admit it as 1.00.
	out := c.Classify("", "ANA LIMA sent you a payment of S/ 1,000,000.00", nil)
	if out.Reason != ReasonAmountOutOfRange {
		t.Errorf("expected %s, got %s", ReasonAmountOutOfRange, out.Reason)
	}
}

func TestClassify_GroupedAmountWithinBounds(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name string
		body string
	}{
		{"comma thousands", "MARIA LOPEZ sent you a payment of S/ 1,500.00"},
		{"comma decimal", "MARIA LOPEZ sent you a payment of S/ 1500,00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := c.Classify("", tt.body, nil)
			if !out.Accepted {
				t.Errorf("body %q: expected accepted, got reason %s", tt.body, out.Reason)
			}
		})
	}
}

func TestClassify_CaseInsensitive(t *testing.T) {
	c := newTestClassifier(t)

	out := c.Classify("", "john doe SENT YOU A PAYMENT OF s/ 50.00", nil)
	if !out.Accepted {
		t.Fatalf("expected case-insensitive accept, got reason %s", out.Reason)
	}
}

func TestClassify_TitleScannedForKeywords(t *testing.T) {
	c := newTestClassifier(t)

	// Keywords split across title and body still count toward the
	// threshold because the scans run over the concatenation.
	out := c.Classify("Oferta exclusiva", "Aprovecha el cashback en tus compras", nil)
	if out.Reason != ReasonExclusionKeywordThreshold {
		t.Errorf("expected %s, got %s", ReasonExclusionKeywordThreshold, out.Reason)
	}
}

func TestAudit_MatchesClassifyStructuralRules(t *testing.T) {
	c := newTestClassifier(t)

	amount := decimal.RequireFromString("50.00")
	out := c.Audit("JOHN DOE sent you a payment of S/ 50.00", &amount)
	if !out.Accepted {
		t.Fatalf("expected audit accept, got reason %s", out.Reason)
	}

	out = c.Audit("Mensaje informativo de tu banco sin monto", nil)
	if out.Accepted {
		t.Fatal("expected audit rejection")
	}
}

func TestNew_RejectsBadPattern(t *testing.T) {
	rules := DefaultRuleSet()
	rules.ExclusionPatterns = append(rules.ExclusionPatterns, `(unclosed`)

	_, err := New(rules, Config{
		MinAmount:     decimal.RequireFromString("0.01"),
		MaxAmount:     decimal.RequireFromString("1000000"),
		MinBodyLength: 12,
	})
	if err == nil {
		t.Fatal("expected error for malformed pattern")
	}
}

func TestNew_RejectsInvertedBounds(t *testing.T) {
	_, err := New(DefaultRuleSet(), Config{
		MinAmount:     decimal.RequireFromString("100"),
		MaxAmount:     decimal.RequireFromString("1"),
		MinBodyLength: 12,
	})
	if err == nil {
		t.Fatal("expected error for inverted bounds")
	}
}

package extract

import (
	"testing"

	"go.uber.org/zap"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := NewExtractor(DefaultPatternTable(), NewCurrencyTable("PEN", zap.NewNop()), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build extractor: %v", err)
	}
	return e
}

func TestExtract_GenericEnglishPayment(t *testing.T) {
	e := newTestExtractor(t)

	facts, ok := e.Extract("", "JOHN DOE sent you a payment of S/ 50.00", "")
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	if facts.Sender != "JOHN DOE" {
		t.Errorf("sender = %q, want JOHN DOE", facts.Sender)
	}
	if facts.Amount.String() != "50" {
		t.Errorf("amount = %s, want 50", facts.Amount)
	}
	if facts.CurrencyCode != "PEN" {
		t.Errorf("currency = %s, want PEN", facts.CurrencyCode)
	}
}

func TestExtract_YapeBody(t *testing.T) {
	e := newTestExtractor(t)

	facts, ok := e.Extract("Confirmación de Pago",
		"MARIA LOPEZ te envió un pago por S/ 120.50",
		"com.bcp.innovacxion.yapeapp")
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	if facts.Sender != "MARIA LOPEZ" {
		t.Errorf("sender = %q, want MARIA LOPEZ", facts.Sender)
	}
	if facts.Amount.String() != "120.5" {
		t.Errorf("amount = %s, want 120.5", facts.Amount)
	}
	if facts.CurrencyCode != "PEN" {
		t.Errorf("currency = %s, want PEN", facts.CurrencyCode)
	}
}

func TestExtract_DollarAmountNormalizes(t *testing.T) {
	e := newTestExtractor(t)

	facts, ok := e.Extract("", "ACME CORP sent you a payment of $ 99.99", "")
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	if facts.CurrencyCode != "USD" {
		t.Errorf("currency = %s, want USD", facts.CurrencyCode)
	}
}

func TestExtract_NoMatchReturnsAbsent(t *testing.T) {
	e := newTestExtractor(t)

	facts, ok := e.Extract("", "Tu clave dinámica es 482910", "")
	if ok || facts != nil {
		t.Fatalf("expected absent result, got %+v", facts)
	}
}

func TestExtract_EmptyInputIsTotal(t *testing.T) {
	e := newTestExtractor(t)

	if _, ok := e.Extract("", "", ""); ok {
		t.Fatal("expected absent result for empty input")
	}
}

func TestExtract_HintPrioritizesAppFamily(t *testing.T) {
	e := newTestExtractor(t)

	// "te envió" without "un pago por" is plin's shape. With the plin
	// hint the plin family runs first and wins.
	facts, ok := e.Extract("", "CARLOS RAMOS te envió S/ 15.00", "pe.interbank.plin")
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	if facts.Sender != "CARLOS RAMOS" {
		t.Errorf("sender = %q, want CARLOS RAMOS", facts.Sender)
	}
}

func TestExtract_FallsBackToTitle(t *testing.T) {
	e := newTestExtractor(t)

	facts, ok := e.Extract("PEDRO QUISPE te envió un pago por S/ 8.00", "Revisa tu app para más detalles", "")
	if !ok {
		t.Fatal("expected extraction from title")
	}
	if facts.Sender != "PEDRO QUISPE" {
		t.Errorf("sender = %q, want PEDRO QUISPE", facts.Sender)
	}
}

func TestExtract_CommaDecimalSeparator(t *testing.T) {
	e := newTestExtractor(t)

	facts, ok := e.Extract("", "ANA FLORES te envió un pago por S/ 45,50", "")
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	if facts.Amount.String() != "45.5" {
		t.Errorf("amount = %s, want 45.5", facts.Amount)
	}
}

func TestExtract_ThousandsSeparatorReadWhole(t *testing.T) {
	e := newTestExtractor(t)

	// A comma-grouped amount must not be cut at the first comma; that
	// would record a thousand-fold smaller payment.
	facts, ok := e.Extract("", "MARIA LOPEZ sent you a payment of S/ 1,500.00", "")
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	if facts.Amount.String() != "1500" {
		t.Errorf("amount = %s, want 1500", facts.Amount)
	}
}

func TestExtract_CommaDecimalLargeAmount(t *testing.T) {
	e := newTestExtractor(t)

	facts, ok := e.Extract("", "ANA FLORES te envió un pago por S/ 1500,00", "com.bcp.innovacxion.yapeapp")
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	if facts.Amount.String() != "1500" {
		t.Errorf("amount = %s, want 1500", facts.Amount)
	}
}

func TestExtract_DotGroupedThousands(t *testing.T) {
	e := newTestExtractor(t)

	facts, ok := e.Extract("", "ANA FLORES te envió un pago por S/ 1.500,00", "com.bcp.innovacxion.yapeapp")
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	if facts.Amount.String() != "1500" {
		t.Errorf("amount = %s, want 1500", facts.Amount)
	}
}

func TestNewExtractor_RejectsWrongCaptureCount(t *testing.T) {
	table := PatternTable{
		{AppID: "broken", Patterns: []string{`(?i)(\w+)\s+pago`}},
	}

	_, err := NewExtractor(table, NewCurrencyTable("PEN", zap.NewNop()), zap.NewNop())
	if err == nil {
		t.Fatal("expected error for pattern with wrong capture count")
	}
}

package extract

import "testing"

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"120", "120"},
		{"120.50", "120.5"},
		{"45,50", "45.5"},
		{"1,500", "1500"},
		{"1,500.00", "1500"},
		{"1500,00", "1500"},
		{"1.500,00", "1500"},
		{"12,345,678.90", "12345678.9"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if err != nil {
				t.Fatalf("ParseAmount(%q): %v", tt.in, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAmount_RejectsGarbage(t *testing.T) {
	if _, err := ParseAmount(""); err == nil {
		t.Error("expected error for empty input")
	}
}

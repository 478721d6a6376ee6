package passcheck

import "testing"

func TestStrength_String(t *testing.T) {
	tests := []struct {
		strength Strength
		want     string
	}{
		{Weak, "Weak"},
		{Fair, "Fair"},
		{Good, "Good"},
		{Strong, "Strong"},
		{Strength(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.strength.String(); got != tt.want {
				t.Errorf("Strength.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name         string
		passphrase   string
		wantValid    bool
		wantStrength Strength
	}{
		{"empty", "", false, Weak},
		{"too_short", "abc1234", false, Weak},
		{"min_length_lower_only", "abcdefgh", true, Weak},
		{"min_length_mixed", "Abcdefg1", true, Fair},
		{"twelve_lower_only", "abcdefghijkl", true, Fair},
		{"twelve_mixed", "Abcdefghijk1", true, Good},
		{"sixteen_three_classes", "Abcdefghijklmn01", true, Strong},
		{"sixteen_with_symbols", "Tr0ub4dor&3horse", true, Strong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Check(tt.passphrase)
			if got.Valid != tt.wantValid {
				t.Errorf("Check(%q).Valid = %v, want %v", tt.passphrase, got.Valid, tt.wantValid)
			}
			if got.Strength != tt.wantStrength {
				t.Errorf("Check(%q).Strength = %v, want %v", tt.passphrase, got.Strength, tt.wantStrength)
			}
		})
	}
}

func TestCheckTooLong(t *testing.T) {
	long := make([]byte, MaxLength+1)
	for i := range long {
		long[i] = 'a'
	}
	got := Check(string(long))
	if got.Valid {
		t.Error("Check(overlong).Valid = true, want false")
	}
	if len(got.Warnings) == 0 {
		t.Error("Check(overlong) produced no warnings")
	}
}

func TestCheckWarnings(t *testing.T) {
	got := Check("abcdefgh")
	if len(got.Warnings) < 2 {
		t.Errorf("Check(short lower-only) warnings = %d, want at least 2", len(got.Warnings))
	}
}

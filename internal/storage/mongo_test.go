package storage

import "testing"

func TestNormalizeTier(t *testing.T) {
	cases := []struct {
		name   string
		raw    any
		want   int
		wasInt bool
	}{
		{"int32 from mongo", int32(2), 2, true},
		{"int64 from mongo", int64(4), 4, true},
		{"plain int", 3, 3, true},
		{"string tier", "2", 2, false},
		{"garbage string", "gold", 0, false},
		{"float", 2.0, 2, false},
		{"nil", nil, 0, false},
		{"negative clamped", int32(-3), 0, true},
		{"above max clamped", int64(12), 5, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, wasInt := normalizeTier(tc.raw)
			if got != tc.want || wasInt != tc.wasInt {
				t.Errorf("normalizeTier(%v) = (%d, %v), want (%d, %v)",
					tc.raw, got, wasInt, tc.want, tc.wasInt)
			}
		})
	}
}

func TestClampTier(t *testing.T) {
	if clampTier(-1) != 0 {
		t.Error("negative tier must clamp to 0")
	}
	if clampTier(6) != 5 {
		t.Error("tier above 5 must clamp to 5")
	}
	if clampTier(3) != 3 {
		t.Error("valid tier must pass through")
	}
}

func TestIsAllDigits(t *testing.T) {
	cases := map[string]bool{
		"123456789012345678": true,
		"":                   false,
		"12a3":               false,
		"7020":               true,
	}
	for in, want := range cases {
		if got := isAllDigits(in); got != want {
			t.Errorf("isAllDigits(%q) = %v, want %v", in, got, want)
		}
	}
}

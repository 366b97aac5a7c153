package logger

import "testing"

func TestRatioSamplerWindow(t *testing.T) {
	s := newRatioSampler(2, 5)
	passed := 0
	for i := 0; i < 20; i++ {
		if s.Allow() {
			passed++
		}
	}
	if passed != 8 {
		t.Errorf("passed = %d of 20, want 8 with a 2/5 ratio", passed)
	}
}

func TestRatioSamplerDisabledPassesEverything(t *testing.T) {
	s := newRatioSampler(0, 0)
	for i := 0; i < 10; i++ {
		if !s.Allow() {
			t.Fatal("disabled sampler rejected an event")
		}
	}

	s.Set(1, 2)
	passed := 0
	for i := 0; i < 10; i++ {
		if s.Allow() {
			passed++
		}
	}
	if passed != 5 {
		t.Errorf("passed = %d of 10 after Set(1, 2), want 5", passed)
	}
}

func TestParseRatioSpec(t *testing.T) {
	cases := []struct {
		spec string
		num  int
		den  int
	}{
		{"", 0, 0},
		{"50", 1, 50},
		{"1/10", 1, 10},
		{" 3 / 7 ", 3, 7},
		{"abc", 0, 0},
		{"1/x", 0, 0},
		{"-5", 0, 0},
	}
	for _, tc := range cases {
		num, den := parseRatioSpec(tc.spec)
		if num != tc.num || den != tc.den {
			t.Errorf("parseRatioSpec(%q) = %d/%d, want %d/%d", tc.spec, num, den, tc.num, tc.den)
		}
	}
}

package domain

import (
	"errors"
	"testing"
)

func TestParseTimeframe_ValidTokens(t *testing.T) {
	cases := []struct {
		token   string
		minutes int
	}{
		{"1m", 1},
		{"5m", 5},
		{"15m", 15},
		{"30m", 30},
		{"1h", 60},
		{"4h", 240},
		{"1d", 1440},
		{"1w", 10080},
	}

	for _, c := range cases {
		tf, err := ParseTimeframe(c.token)
		if err != nil {
			t.Errorf("ParseTimeframe(%q) returned error: %v", c.token, err)
			continue
		}
		if tf.Minutes != c.minutes {
			t.Errorf("ParseTimeframe(%q) = %d minutes, want %d", c.token, tf.Minutes, c.minutes)
		}
		if tf.Token != c.token {
			t.Errorf("ParseTimeframe(%q) kept token %q", c.token, tf.Token)
		}
	}
}

func TestParseTimeframe_InvalidTokens(t *testing.T) {
	for _, token := range []string{"", "m", "15", "15x", "0m", "-5m", "1.5h", "m15", "15M"} {
		_, err := ParseTimeframe(token)
		if !errors.Is(err, ErrInvalidTimeframe) {
			t.Errorf("ParseTimeframe(%q) = %v, want ErrInvalidTimeframe", token, err)
		}
	}
}

func TestTimeframe_DurationMs(t *testing.T) {
	tf := MustParseTimeframe("1h")
	if tf.DurationMs() != 3_600_000 {
		t.Errorf("1h duration = %d ms, want 3600000", tf.DurationMs())
	}
}

func TestTimeframe_IsBase(t *testing.T) {
	if !MustParseTimeframe("1m").IsBase() {
		t.Error("1m should be the base timeframe")
	}
	if MustParseTimeframe("5m").IsBase() {
		t.Error("5m should not be the base timeframe")
	}
}

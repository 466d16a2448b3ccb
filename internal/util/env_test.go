package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"No", true, false},
		{"off", true, false},
		{" true ", false, true},
		{"maybe", true, true},
		{"maybe", false, false},
		{"", true, true},
		{"", false, false},
	}
	for _, tt := range tests {
		t.Setenv("NUDGEPIPE_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("NUDGEPIPE_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		def   time.Duration
		want  time.Duration
	}{
		{"30m", time.Hour, 30 * time.Minute},
		{"1h15m", time.Hour, 75 * time.Minute},
		{" 45s ", time.Hour, 45 * time.Second},
		{"bogus", time.Hour, time.Hour},
		{"", 10 * time.Minute, 10 * time.Minute},
	}
	for _, tt := range tests {
		t.Setenv("NUDGEPIPE_TEST_DURATION", tt.value)
		if got := ParseDurationEnv("NUDGEPIPE_TEST_DURATION", tt.def); got != tt.want {
			t.Errorf("ParseDurationEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

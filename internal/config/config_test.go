package config

import (
	"strings"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		defaultVal string
		envValue   string
		want       string
	}{
		{
			name:       "Environment variable exists",
			key:        "TEST_KEY_EXISTS",
			defaultVal: "default",
			envValue:   "custom_value",
			want:       "custom_value",
		},
		{
			name:       "Environment variable does not exist",
			key:        "TEST_KEY_NOT_EXISTS",
			defaultVal: "default_value",
			envValue:   "",
			want:       "default_value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := GetEnv(tt.key, tt.defaultVal)
			if got != tt.want {
				t.Errorf("GetEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		defaultVal int
		envValue   string
		want       int
	}{
		{name: "Valid integer", key: "TEST_INT_VALID", defaultVal: 0, envValue: "42", want: 42},
		{name: "Invalid integer", key: "TEST_INT_INVALID", defaultVal: 10, envValue: "not_a_number", want: 10},
		{name: "Empty value", key: "TEST_INT_EMPTY", defaultVal: 5, envValue: "", want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := GetEnvAsInt(tt.key, tt.defaultVal)
			if got != tt.want {
				t.Errorf("GetEnvAsInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     time.Duration
	}{
		{name: "Go duration", envValue: "250ms", want: 250 * time.Millisecond},
		{name: "Plain seconds", envValue: "5", want: 5 * time.Second},
		{name: "Fractional seconds", envValue: "1.5", want: 1500 * time.Millisecond},
		{name: "Garbage", envValue: "soon", want: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.envValue)
			if got := GetEnvAsDuration("TEST_DURATION", time.Minute); got != tt.want {
				t.Errorf("GetEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "yes")
	if !GetEnvAsBool("TEST_BOOL", false) {
		t.Error("yes should parse as true")
	}
	t.Setenv("TEST_BOOL", "off")
	if GetEnvAsBool("TEST_BOOL", true) {
		t.Error("off should parse as false")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HOUSE_EDGE", "0.02")
	t.Setenv("ENTROPY_PROVIDER", "CometBFT")
	t.Setenv("BLUEPRINT_DB_PASSWORD", "hunter2")

	cfg := Load()
	if cfg.HouseEdge != 0.02 {
		t.Errorf("HouseEdge = %v, want 0.02", cfg.HouseEdge)
	}
	if cfg.EntropyProvider != EntropyCometBFT {
		t.Errorf("EntropyProvider = %q, want %q", cfg.EntropyProvider, EntropyCometBFT)
	}
	if strings.Contains(cfg.String(), "hunter2") {
		t.Error("String() leaked the database password")
	}
	if !strings.Contains(cfg.DB.URL(), "hunter2") {
		t.Error("URL() should carry the password")
	}
}

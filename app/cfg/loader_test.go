package cfg

import (
	"reflect"
	"testing"
)

func TestSplitOrigins(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"https://example.com", []string{"https://example.com"}},
		{"https://a.com,https://b.com", []string{"https://a.com", "https://b.com"}},
		{" https://a.com , https://b.com ", []string{"https://a.com", "https://b.com"}},
		{",,", nil},
		{"https://a.com,,https://b.com", []string{"https://a.com", "https://b.com"}},
	}

	for _, tt := range tests {
		got := splitOrigins(tt.raw)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitOrigins(%q) = %v, expected %v", tt.raw, got, tt.want)
		}
	}
}

func TestModeFlags(t *testing.T) {
	tests := []struct {
		mode   string
		api    bool
		worker bool
	}{
		{"api", true, false},
		{"worker", false, true},
		{"both", true, true},
	}

	for _, tt := range tests {
		c := &Cfg{Mode: tt.mode}
		if c.APIEnabled() != tt.api {
			t.Errorf("mode %q: APIEnabled() = %v, expected %v", tt.mode, c.APIEnabled(), tt.api)
		}
		if c.WorkerEnabled() != tt.worker {
			t.Errorf("mode %q: WorkerEnabled() = %v, expected %v", tt.mode, c.WorkerEnabled(), tt.worker)
		}
	}
}

func TestSetReplacesGlobal(t *testing.T) {
	prev := globalCfg
	defer Set(prev)

	want := &Cfg{Mode: "api"}
	Set(want)

	if Get() != want {
		t.Error("Get() did not return the configuration passed to Set()")
	}
}

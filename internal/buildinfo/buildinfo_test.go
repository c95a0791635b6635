package buildinfo

import "testing"

func TestContextGetters(t *testing.T) {
	tests := []struct {
		name        string
		ctx         *Context
		wantVersion string
		wantDate    string
	}{
		{"nil context", nil, UnknownValue, UnknownValue},
		{"empty", NewContext("", ""), UnknownValue, UnknownValue},
		{"populated", NewContext("1.0.0", "2025-05-01"), "1.0.0", "2025-05-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ctx.GetVersion(); got != tt.wantVersion {
				t.Errorf("GetVersion() = %q, want %q", got, tt.wantVersion)
			}
			if got := tt.ctx.GetBuildDate(); got != tt.wantDate {
				t.Errorf("GetBuildDate() = %q, want %q", got, tt.wantDate)
			}
		})
	}
}

func TestRelease(t *testing.T) {
	if got := NewContext("2.1.0", "").Release(); got != "leafnet@2.1.0" {
		t.Errorf("Release() = %q", got)
	}
}

package core

import (
	"strings"
	"testing"
)

func TestGetVersionInfo(t *testing.T) {
	result := GetVersionInfo()
	for _, want := range []string{Version, BuildTime, GitCommit, "built", "commit"} {
		if !strings.Contains(result, want) {
			t.Errorf("GetVersionInfo() = %q, should contain %q", result, want)
		}
	}
	if GetVersion() != Version {
		t.Errorf("GetVersion() = %q, want %q", GetVersion(), Version)
	}
}

func TestBuildLdflags(t *testing.T) {
	tests := []struct {
		name      string
		version   string
		buildTime string
		gitCommit string
		expected  string
	}{
		{
			name:      "all values set",
			version:   "v1.0.0",
			buildTime: "2024-01-15T10:30:00Z",
			gitCommit: "abc1234",
			expected:  "-X go_waifu2x/core.Version=v1.0.0 -X go_waifu2x/core.BuildTime=2024-01-15T10:30:00Z -X go_waifu2x/core.GitCommit=abc1234",
		},
		{
			name:     "only version",
			version:  "v2.0.0",
			expected: "-X go_waifu2x/core.Version=v2.0.0",
		},
		{
			name:      "commit without version",
			gitCommit: "def5678",
			expected:  "-X go_waifu2x/core.GitCommit=def5678",
		},
		{
			name:     "nothing set",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildLdflags(tt.version, tt.buildTime, tt.gitCommit); got != tt.expected {
				t.Errorf("BuildLdflags() = %q, want %q", got, tt.expected)
			}
		})
	}
}

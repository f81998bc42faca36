package main

import "testing"

func TestHumanizeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"script_ready", "Script Ready"},
		{"outline-generation", "Outline Generation"},
		{"processing", "Processing"},
		{"  ", ""},
	}
	for _, tc := range tests {
		if got := humanizeLabel(tc.in); got != tc.want {
			t.Errorf("humanizeLabel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatWait(t *testing.T) {
	if got := formatWait(0); got != "" {
		t.Errorf("formatWait(0) = %q, want empty", got)
	}
	if got := formatWait(45); got != "45s" {
		t.Errorf("formatWait(45) = %q", got)
	}
	if got := formatWait(480); got != "8m0s" {
		t.Errorf("formatWait(480) = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("a very long episode title", 10); got != "a very ..." {
		t.Errorf("truncate long = %q", got)
	}
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"status", "runs", "queue", "config", "test-notify"} {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("root command missing %q subcommand", name)
		}
	}
}

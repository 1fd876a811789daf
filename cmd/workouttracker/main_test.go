package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
)

func TestExtractOptions(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		after   int
		before  int
		perPage int
		wantErr bool
	}{
		{"defaults", nil, 1, -1, 0, false},
		{"after", []string{"--after-days-ago", "14"}, 14, -1, 0, false},
		{"before zero", []string{"--before-days-ago", "0"}, 1, 0, 0, false},
		{"per page", []string{"--per-page", "50"}, 1, -1, 50, false},
		{"negative after", []string{"--after-days-ago", "-2"}, 0, 0, 0, true},
		{"negative before", []string{"--before-days-ago", "-2"}, 0, 0, 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "extract", RunE: func(*cobra.Command, []string) error { return nil }}
			addExtractFlags(cmd)
			if err := cmd.ParseFlags(tc.args); err != nil {
				t.Fatal(err)
			}

			opts, err := extractOptions(cmd)
			if tc.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if *opts.AfterDaysAgo != tc.after {
				t.Errorf("expected after_days_ago %d, got %d", tc.after, *opts.AfterDaysAgo)
			}
			if tc.before < 0 && opts.BeforeDaysAgo != nil {
				t.Errorf("expected no before_days_ago, got %d", *opts.BeforeDaysAgo)
			}
			if tc.before >= 0 && (opts.BeforeDaysAgo == nil || *opts.BeforeDaysAgo != tc.before) {
				t.Errorf("expected before_days_ago %d, got %v", tc.before, opts.BeforeDaysAgo)
			}
			if opts.PerPage != tc.perPage {
				t.Errorf("expected per_page %d, got %d", tc.perPage, opts.PerPage)
			}
		})
	}
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "extract", "load", "sync"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("expected %s command, got %v (%v)", name, cmd, err)
		}
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printJSON(&buf, map[string]int{"rows": 2}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "{\n  \"rows\": 2\n}\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

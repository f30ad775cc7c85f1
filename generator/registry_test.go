package generator

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestDefaultRegistryOrder(t *testing.T) {
	reg, err := DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}
	want := []string{
		"executive_summary", "problem_statement", "proposed_solution", "value_proposition",
		"scope_of_work", "process_flow", "technical_architecture", "screenshots",
		"cost_breakdown", "implementation_timeline", "roi_analysis", "next_steps",
	}
	if got := reg.Keys(); !reflect.DeepEqual(got, want) {
		t.Fatalf("keys = %v", got)
	}
	for _, def := range reg.Sections() {
		if def.Schema.Kind == KindDiagram && !def.Images {
			t.Errorf("%s: diagram sections accept images", def.Key)
		}
	}
}

func TestRegistryLookupUnknown(t *testing.T) {
	reg, err := DefaultRegistry()
	if err != nil {
		t.Fatal(err)
	}
	_, err = reg.Lookup("appendix")
	if !errors.Is(err, ErrUnknownSection) {
		t.Fatalf("err = %v, want ErrUnknownSection", err)
	}
}

func TestLoadRegistryValidation(t *testing.T) {
	const valid = `
[[sections]]
key = "intro"
title = "Intro"
max_tokens = 100
instructions = "Say hello."
[sections.schema]
kind = "bullets"
bullets = 2
`
	tests := []struct {
		name    string
		toml    string
		wantErr string
	}{
		{name: "empty", toml: "", wantErr: "empty"},
		{name: "bad toml", toml: "[[sections]\n", wantErr: "decode"},
		{name: "missing title", toml: strings.Replace(valid, `title = "Intro"`, "", 1), wantErr: "title is required"},
		{name: "zero tokens", toml: strings.Replace(valid, "max_tokens = 100", "max_tokens = 0", 1), wantErr: "max_tokens"},
		{name: "no bullet count", toml: strings.Replace(valid, "bullets = 2", "", 1), wantErr: "bullet count"},
		{name: "unknown kind", toml: strings.Replace(valid, `kind = "bullets"`, `kind = "poem"`, 1), wantErr: "unknown schema kind"},
		{name: "duplicate", toml: valid + valid, wantErr: "duplicate"},
		{name: "heading without colon", toml: `
[[sections]]
key = "roi"
title = "ROI"
max_tokens = 10
instructions = "x"
[sections.schema]
kind = "categorized"
headings = ["Returns"]
`, wantErr: "colon"},
		{name: "unknown table variant", toml: `
[[sections]]
key = "cost"
title = "Cost"
max_tokens = 10
instructions = "x"
[sections.schema]
kind = "tables"
[[sections.schema.tables]]
variant = "fancy"
columns = ["A"]
`, wantErr: "unknown table variant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRegistry([]byte(tt.toml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	reg, err := LoadRegistry([]byte(valid))
	if err != nil {
		t.Fatalf("valid registry: %v", err)
	}
	if def, _ := reg.Lookup("intro"); def.Instructions != "Say hello." {
		t.Fatalf("instructions = %q", def.Instructions)
	}
}

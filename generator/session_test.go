package generator

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestAgent(t *testing.T, llm LLMClient) *Agent {
	t.Helper()
	client, _ := newTestClient(t, llm)
	reg, err := DefaultRegistry()
	if err != nil {
		t.Fatal(err)
	}
	agent, err := NewAgent(client, reg, Options{MaxRetries: 2})
	if err != nil {
		t.Fatal(err)
	}
	return agent
}

func TestRequirementsMissing(t *testing.T) {
	req := Requirements{CompanyName: "Acme", ClientName: " ", Timeline: "3 months"}
	want := []string{"projectTitle", "clientName", "projectDescription", "budgetRange", "industryType"}
	if got := req.Missing(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Missing() = %v, want %v", got, want)
	}
}

func TestGenerateAll(t *testing.T) {
	agent := newTestAgent(t, MockLLM{})
	keys := agent.Registry().Keys()

	sections, err := agent.GenerateAll(context.Background(), Requirements{ProjectTitle: "Portal"}, append(keys, keys[0]))
	if err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	if len(sections) != len(keys) {
		t.Fatalf("got %d sections, want %d", len(sections), len(keys))
	}
	for _, k := range keys {
		s := sections[k]
		if s.Status != StatusComplete || s.Version != 1 || s.Approved || s.GeneratedAt.IsZero() {
			t.Errorf("%s: %+v", k, s)
		}
	}
}

func TestGenerateAllReportsFailure(t *testing.T) {
	llm := llmFunc(func(_ context.Context, p Prompt) (string, error) {
		if strings.Contains(p.User, `"Scope of Work"`) {
			return "", &StatusError{StatusCode: 401, Message: "bad key"}
		}
		return MockLLM{}.Complete(context.Background(), p)
	})
	agent := newTestAgent(t, llm)

	_, err := agent.GenerateAll(context.Background(), Requirements{}, []string{"problem_statement", "scope_of_work"})
	if ErrorKind(err) != KindAuthentication {
		t.Fatalf("err = %v", err)
	}

	_, err = agent.GenerateAll(context.Background(), Requirements{}, []string{"problem_statement", "appendix"})
	if !errors.Is(err, ErrUnknownSection) {
		t.Fatalf("err = %v, want ErrUnknownSection", err)
	}
}

func TestGenerateSectionNeedsReview(t *testing.T) {
	agent := newTestAgent(t, llmFunc(func(context.Context, Prompt) (string, error) {
		return "* just one point", nil
	}))
	s, err := agent.GenerateSection(context.Background(), Requirements{}, "next_steps", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != StatusNeedsReview || s.Content != "• just one point" {
		t.Fatalf("section = %+v", s)
	}
}

func newReviewSession(t *testing.T, llm LLMClient) *Session {
	t.Helper()
	agent := newTestAgent(t, llm)
	sections, err := agent.GenerateAll(context.Background(), Requirements{ProjectTitle: "Portal"}, []string{"problem_statement", "next_steps"})
	if err != nil {
		t.Fatal(err)
	}
	return NewSession(NewProposal("p1", Requirements{ProjectTitle: "Portal"}, sections, time.Now()), agent)
}

func TestSessionApproveReject(t *testing.T) {
	s := newReviewSession(t, MockLLM{})

	sec, err := s.Approve("problem_statement")
	if err != nil || sec.Status != StatusApproved || !sec.Approved {
		t.Fatalf("Approve = %+v, %v", sec, err)
	}
	if _, err := s.Approve("problem_statement"); err != nil {
		t.Fatalf("second approve: %v", err)
	}
	if _, err := s.Reject("problem_statement"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reject approved: err = %v", err)
	}

	sec, err = s.Reject("next_steps")
	if err != nil || sec.Status != StatusRejected || sec.Approved {
		t.Fatalf("Reject = %+v, %v", sec, err)
	}
	if _, err := s.Approve("next_steps"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("approve rejected: err = %v", err)
	}

	sec, err = s.Edit("next_steps", "• Sign the contract")
	if err != nil || sec.Status != StatusNeedsReview || sec.Content != "• Sign the contract" {
		t.Fatalf("Edit = %+v, %v", sec, err)
	}
	if _, err := s.Approve("next_steps"); err != nil {
		t.Fatalf("approve after edit: %v", err)
	}
	if !ExportReady(s.Proposal, nil) {
		t.Fatal("all sections approved, proposal should be export ready")
	}

	if _, err := s.Approve("missing"); !errors.Is(err, ErrSectionNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestSessionRegenerate(t *testing.T) {
	s := newReviewSession(t, MockLLM{})
	if _, err := s.Approve("problem_statement"); err != nil {
		t.Fatal(err)
	}

	var states []Status
	s.OnChange = func(p Proposal) { states = append(states, p.Sections["problem_statement"].Status) }

	sec, err := s.Regenerate(context.Background(), "problem_statement", "shorter")
	if err != nil {
		t.Fatal(err)
	}
	if sec.Version != 2 || sec.Approved || sec.Status != StatusComplete {
		t.Fatalf("regenerated = %+v", sec)
	}
	if !reflect.DeepEqual(states, []Status{StatusGenerating}) {
		t.Fatalf("observed states %v", states)
	}
}

func TestSessionRegenerateFailureRestoresSection(t *testing.T) {
	var fail atomic.Bool
	llm := llmFunc(func(ctx context.Context, p Prompt) (string, error) {
		if fail.Load() {
			return "", &StatusError{StatusCode: 529, Message: "overloaded"}
		}
		return MockLLM{}.Complete(ctx, p)
	})
	s := newReviewSession(t, llm)
	before, err := s.Approve("next_steps")
	if err != nil {
		t.Fatal(err)
	}

	fail.Store(true)
	if _, err := s.Regenerate(context.Background(), "next_steps", ""); ErrorKind(err) != KindOverloaded {
		t.Fatalf("err = %v", err)
	}
	if got := s.Proposal.Sections["next_steps"]; got != before {
		t.Fatalf("section after failure = %+v, want %+v", got, before)
	}

	if _, err := s.Regenerate(context.Background(), "scope_of_work", ""); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := s.Proposal.Sections["scope_of_work"]; ok {
		t.Fatal("failed first generation left a section behind")
	}
}

func TestSessionRemove(t *testing.T) {
	s := newReviewSession(t, MockLLM{})
	if err := s.Remove("next_steps"); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove("next_steps"); !errors.Is(err, ErrSectionNotFound) {
		t.Fatalf("err = %v", err)
	}
	if len(s.Proposal.Sections) != 1 {
		t.Fatalf("sections = %v", s.Proposal.Sections)
	}
}

func TestExportReady(t *testing.T) {
	approved := map[string]Section{"a": {Key: "a", Status: StatusApproved, Approved: true}}
	tests := []struct {
		name   string
		p      Proposal
		images []Image
		want   bool
	}{
		{name: "no sections", p: Proposal{}, want: false},
		{name: "approved", p: Proposal{Sections: approved}, want: true},
		{name: "pending section", p: Proposal{Sections: map[string]Section{"a": {Status: StatusComplete}}}, want: false},
		{name: "pending image", p: Proposal{Sections: approved}, images: []Image{{Status: ImagePending}}, want: false},
		{name: "approved image", p: Proposal{Sections: approved}, images: []Image{{Status: ImageApproved}}, want: true},
	}
	for _, tt := range tests {
		if got := ExportReady(tt.p, tt.images); got != tt.want {
			t.Errorf("%s: ExportReady = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOrderedSections(t *testing.T) {
	reg, _ := DefaultRegistry()
	p := Proposal{Sections: map[string]Section{
		"next_steps":        {Key: "next_steps"},
		"zz_custom":         {Key: "zz_custom"},
		"executive_summary": {Key: "executive_summary"},
	}}
	var got []string
	for _, s := range p.OrderedSections(reg) {
		got = append(got, s.Key)
	}
	want := []string{"executive_summary", "next_steps", "zz_custom"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v", got)
	}
}

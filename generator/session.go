package generator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidTransition = errors.New("invalid section transition")
	ErrSectionNotFound   = errors.New("section not found")
)

// NewProposal assembles a fresh proposal from generated sections.
func NewProposal(id string, req Requirements, sections map[string]Section, now time.Time) Proposal {
	if sections == nil {
		sections = make(map[string]Section)
	}
	return Proposal{
		ID:           id,
		Requirements: req,
		Sections:     sections,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Session applies review actions to one proposal:
//
//	generating -> complete | needs_review -> approved | rejected -> needs_review (edit/regenerate)
//
// OnChange, when set, sees the proposal after every intermediate state change.
type Session struct {
	Proposal Proposal
	OnChange func(Proposal)

	agent *Agent
	now   func() time.Time
}

func NewSession(p Proposal, agent *Agent) *Session {
	if p.Sections == nil {
		p.Sections = make(map[string]Section)
	}
	return &Session{Proposal: p, agent: agent, now: time.Now}
}

func (s *Session) section(key string) (Section, error) {
	sec, ok := s.Proposal.Sections[key]
	if !ok {
		return Section{}, fmt.Errorf("%w: %s", ErrSectionNotFound, key)
	}
	return sec, nil
}

func (s *Session) put(sec Section) {
	s.Proposal.Sections[sec.Key] = sec
	s.Proposal.UpdatedAt = s.now()
}

func (s *Session) changed() {
	if s.OnChange != nil {
		s.OnChange(s.Proposal)
	}
}

// Regenerate produces a new version of a section, or the first version when the proposal
// does not have it yet. Approval is reset. If generation fails the section goes back to
// the state it had before and the error is returned.
func (s *Session) Regenerate(ctx context.Context, key, feedback string) (Section, error) {
	if s.agent == nil {
		return Section{}, errors.New("session has no generator")
	}
	prev, existed := s.Proposal.Sections[key]
	if existed && prev.Status == StatusGenerating {
		return Section{}, fmt.Errorf("%w: %s is already generating", ErrInvalidTransition, key)
	}
	def, err := s.agent.Registry().Lookup(key)
	if err != nil {
		return Section{}, err
	}

	pending := prev
	if !existed {
		pending = Section{Key: def.Key, Title: def.Title}
	}
	pending.Status = StatusGenerating
	pending.Approved = false
	s.put(pending)
	s.changed()

	var base *Section
	if existed {
		base = &prev
	}
	sec, err := s.agent.GenerateSection(ctx, s.Proposal.Requirements, key, base, feedback)
	if err != nil {
		if existed {
			s.put(prev)
		} else {
			delete(s.Proposal.Sections, key)
			s.Proposal.UpdatedAt = s.now()
		}
		return Section{}, err
	}
	s.put(sec)
	return sec, nil
}

// Edit replaces a section's content with the reviewer's text and sends it back to review.
func (s *Session) Edit(key, content string) (Section, error) {
	sec, err := s.section(key)
	if err != nil {
		return Section{}, err
	}
	if sec.Status == StatusGenerating {
		return Section{}, fmt.Errorf("%w: %s is generating", ErrInvalidTransition, key)
	}
	sec.Content = content
	sec.Status = StatusNeedsReview
	sec.Approved = false
	s.put(sec)
	return sec, nil
}

func (s *Session) Approve(key string) (Section, error) {
	sec, err := s.section(key)
	if err != nil {
		return Section{}, err
	}
	switch sec.Status {
	case StatusApproved:
		return sec, nil
	case StatusComplete, StatusNeedsReview:
	default:
		return Section{}, fmt.Errorf("%w: cannot approve %s while %s", ErrInvalidTransition, key, sec.Status)
	}
	sec.Status = StatusApproved
	sec.Approved = true
	s.put(sec)
	return sec, nil
}

// Reject marks a section rejected. Rejected sections re-enter review through Edit or Regenerate.
func (s *Session) Reject(key string) (Section, error) {
	sec, err := s.section(key)
	if err != nil {
		return Section{}, err
	}
	switch sec.Status {
	case StatusRejected:
		return sec, nil
	case StatusComplete, StatusNeedsReview:
	default:
		return Section{}, fmt.Errorf("%w: cannot reject %s while %s", ErrInvalidTransition, key, sec.Status)
	}
	sec.Status = StatusRejected
	sec.Approved = false
	s.put(sec)
	return sec, nil
}

// Remove deletes a section from the proposal.
func (s *Session) Remove(key string) error {
	if _, err := s.section(key); err != nil {
		return err
	}
	delete(s.Proposal.Sections, key)
	s.Proposal.UpdatedAt = s.now()
	return nil
}

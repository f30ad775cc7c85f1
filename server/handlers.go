package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"proposal_wizard/format"
	"proposal_wizard/generator"
)

var (
	errProposalNotFound = errors.New("proposal not found")
	errImageNotFound    = errors.New("image not found")
)

type generateRequest struct {
	generator.Requirements
	Regenerate       bool     `json:"regenerate"`
	SectionType      string   `json:"sectionType"`
	SelectedSections []string `json:"selectedSections"`
	ProposalID       string   `json:"proposalId"`
	Feedback         string   `json:"feedback"`
}

// handleGenerate creates a proposal from the requirements, or regenerates one section of it
// when regenerate and sectionType are set.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if missing := req.Missing(); len(missing) > 0 {
		writeError(w, http.StatusBadRequest, "Missing required fields: "+strings.Join(missing, ", "))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), generateTimeout)
	defer cancel()

	if req.Regenerate && req.SectionType != "" {
		s.regenerate(ctx, w, req)
		return
	}

	keys := req.SelectedSections
	if len(keys) == 0 && req.ProposalID != "" {
		stored, err := s.proposals.SelectedSections(ctx, req.ProposalID)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		keys = stored
	}
	if len(keys) == 0 {
		keys = s.agent.Registry().Keys()
	}

	sections, err := s.agent.GenerateAll(ctx, req.Requirements, keys)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	id := req.ProposalID
	if id == "" {
		id = s.newID()
	}
	mu := s.lockProposal(id)
	defer mu.Unlock()

	prop := generator.NewProposal(id, req.Requirements, sections, s.now())
	if existing, ok, err := s.proposals.Proposal(ctx, id); err != nil {
		s.writeFailure(w, err)
		return
	} else if ok {
		prop.CreatedAt = existing.CreatedAt
	}
	if err := s.proposals.SaveProposal(ctx, prop); err != nil {
		s.writeFailure(w, err)
		return
	}
	if err := s.proposals.SaveSelectedSections(ctx, id, keys); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.log.Info("proposal generated", "proposal", id, "sections", len(sections))
	writeData(w, http.StatusOK, prop)
}

func (s *Server) regenerate(ctx context.Context, w http.ResponseWriter, req generateRequest) {
	if req.ProposalID == "" {
		sec, err := s.agent.GenerateSection(ctx, req.Requirements, req.SectionType, nil, req.Feedback)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		prop := generator.NewProposal(s.newID(), req.Requirements, map[string]generator.Section{sec.Key: sec}, s.now())
		if err := s.proposals.SaveProposal(ctx, prop); err != nil {
			s.writeFailure(w, err)
			return
		}
		writeData(w, http.StatusOK, prop)
		return
	}

	s.withSession(w, ctx, req.ProposalID, func(sess *generator.Session) (any, error) {
		sess.Proposal.Requirements = req.Requirements
		if _, err := sess.Regenerate(ctx, req.SectionType, req.Feedback); err != nil {
			return nil, err
		}
		return sess.Proposal, nil
	})
}

// withSession runs fn against the stored proposal under its lock and saves the result.
// Intermediate states reported by the session are saved as they happen so event stream
// subscribers see them. Saves outlive ctx: once a generating state is stored, the final
// state must be stored too even if the client went away or the deadline passed.
func (s *Server) withSession(w http.ResponseWriter, ctx context.Context, id string, fn func(*generator.Session) (any, error)) {
	mu := s.lockProposal(id)
	defer mu.Unlock()

	prop, ok, err := s.proposals.Proposal(ctx, id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if !ok {
		s.writeFailure(w, fmt.Errorf("%w: %s", errProposalNotFound, id))
		return
	}

	save := func(p generator.Proposal) error {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
		defer cancel()
		return s.proposals.SaveProposal(saveCtx, p)
	}
	sess := generator.NewSession(prop, s.agent)
	sess.OnChange = func(p generator.Proposal) {
		if err := save(p); err != nil {
			s.log.Warn("failed to save intermediate proposal state", "proposal", id, "err", err)
		}
	}
	out, err := fn(sess)
	if saveErr := save(sess.Proposal); saveErr != nil {
		s.writeFailure(w, saveErr)
		return
	}
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeData(w, http.StatusOK, out)
}

func (s *Server) handleSectionTypes(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.agent.Registry().Sections())
}

func (s *Server) handleProposalGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	prop, ok, err := s.proposals.Proposal(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if !ok {
		s.writeFailure(w, fmt.Errorf("%w: %s", errProposalNotFound, id))
		return
	}
	writeData(w, http.StatusOK, prop)
}

func (s *Server) handleSelectedGet(w http.ResponseWriter, r *http.Request) {
	keys, err := s.proposals.SelectedSections(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if keys == nil {
		keys = s.agent.Registry().Keys()
	}
	writeData(w, http.StatusOK, keys)
}

func (s *Server) handleSelectedPut(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SelectedSections []string `json:"selectedSections"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, k := range body.SelectedSections {
		if _, err := s.agent.Registry().Lookup(k); err != nil {
			s.writeFailure(w, err)
			return
		}
	}
	if err := s.proposals.SaveSelectedSections(r.Context(), r.PathValue("id"), body.SelectedSections); err != nil {
		s.writeFailure(w, err)
		return
	}
	writeData(w, http.StatusOK, body.SelectedSections)
}

func (s *Server) handleSectionEdit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content *string `json:"content"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Content == nil {
		writeError(w, http.StatusBadRequest, "Missing required fields: content")
		return
	}
	key := r.PathValue("key")
	s.withSession(w, r.Context(), r.PathValue("id"), func(sess *generator.Session) (any, error) {
		return sess.Edit(key, *body.Content)
	})
}

func (s *Server) handleSectionDelete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	s.withSession(w, r.Context(), r.PathValue("id"), func(sess *generator.Session) (any, error) {
		if err := sess.Remove(key); err != nil {
			return nil, err
		}
		return sess.Proposal, nil
	})
}

func (s *Server) handleSectionApprove(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	s.withSession(w, r.Context(), r.PathValue("id"), func(sess *generator.Session) (any, error) {
		return sess.Approve(key)
	})
}

func (s *Server) handleSectionReject(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	s.withSession(w, r.Context(), r.PathValue("id"), func(sess *generator.Session) (any, error) {
		return sess.Reject(key)
	})
}

func (s *Server) handleSectionRegenerate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Feedback string `json:"feedback"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), generateTimeout)
	defer cancel()

	key := r.PathValue("key")
	s.withSession(w, ctx, r.PathValue("id"), func(sess *generator.Session) (any, error) {
		return sess.Regenerate(ctx, key, body.Feedback)
	})
}

func (s *Server) handleSectionPreview(w http.ResponseWriter, r *http.Request) {
	id, key := r.PathValue("id"), r.PathValue("key")
	prop, ok, err := s.proposals.Proposal(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if !ok {
		s.writeFailure(w, fmt.Errorf("%w: %s", errProposalNotFound, id))
		return
	}
	sec, ok := prop.Sections[key]
	if !ok {
		s.writeFailure(w, fmt.Errorf("%w: %s", generator.ErrSectionNotFound, key))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, format.MarkdownToHTML(sec.Content))
}

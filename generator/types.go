package generator

import (
	"sort"
	"strings"
	"time"
)

// Requirements is the business brief collected by the wizard form.
type Requirements struct {
	CompanyName        string   `json:"companyName"`
	ProjectTitle       string   `json:"projectTitle"`
	ClientName         string   `json:"clientName"`
	ProjectDescription string   `json:"projectDescription"`
	Country            string   `json:"country,omitempty"`
	Currency           string   `json:"currency,omitempty"`
	BudgetRange        string   `json:"budgetRange"`
	Timeline           string   `json:"timeline"`
	IndustryType       string   `json:"industryType"`
	Objectives         []string `json:"objectives,omitempty"`
}

// Missing returns the JSON names of required fields that are blank, in form order.
func (r Requirements) Missing() []string {
	required := []struct {
		name  string
		value string
	}{
		{"companyName", r.CompanyName},
		{"projectTitle", r.ProjectTitle},
		{"clientName", r.ClientName},
		{"projectDescription", r.ProjectDescription},
		{"budgetRange", r.BudgetRange},
		{"timeline", r.Timeline},
		{"industryType", r.IndustryType},
	}
	var missing []string
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

type Status string

const (
	StatusGenerating  Status = "generating"
	StatusComplete    Status = "complete"
	StatusNeedsReview Status = "needs_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
)

// Section is one titled block of proposal content with its own approval lifecycle.
type Section struct {
	Key         string    `json:"key"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Status      Status    `json:"status"`
	Approved    bool      `json:"approved"`
	GeneratedAt time.Time `json:"generatedAt"`
	Version     int       `json:"version"`
}

// Proposal aggregates the requirements and every generated section of one engagement.
type Proposal struct {
	ID           string             `json:"id"`
	Requirements Requirements       `json:"requirements"`
	Sections     map[string]Section `json:"sections"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// OrderedSections returns the sections in registry order. Keys unknown to the registry
// follow, sorted by key.
func (p Proposal) OrderedSections(reg *Registry) []Section {
	out := make([]Section, 0, len(p.Sections))
	seen := make(map[string]bool, len(p.Sections))
	if reg != nil {
		for _, def := range reg.Sections() {
			if s, ok := p.Sections[def.Key]; ok {
				out = append(out, s)
				seen[def.Key] = true
			}
		}
	}
	var rest []string
	for k := range p.Sections {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out = append(out, p.Sections[k])
	}
	return out
}

type ImageStatus string

const (
	ImagePending  ImageStatus = "pending"
	ImageApproved ImageStatus = "approved"
	ImageRejected ImageStatus = "rejected"
)

// Image is an uploaded diagram or screenshot attached to a section.
type Image struct {
	ID          string      `json:"id"`
	SectionKey  string      `json:"sectionKey"`
	Name        string      `json:"name"`
	URL         string      `json:"url"`
	ContentType string      `json:"contentType,omitempty"`
	Status      ImageStatus `json:"status"`
	UploadedAt  time.Time   `json:"uploadedAt"`
}

// ExportReady reports whether every section and every image has been approved.
func ExportReady(p Proposal, images []Image) bool {
	if len(p.Sections) == 0 {
		return false
	}
	for _, s := range p.Sections {
		if s.Status != StatusApproved {
			return false
		}
	}
	for _, img := range images {
		if img.Status != ImageApproved {
			return false
		}
	}
	return true
}

// Package match reconciles a resolved client candidate against the clients
// already known to the store. The matcher is an ordered-rule comparator, not
// a scored one: the same inputs always produce the same match.
package match

import (
	"strings"

	"github.com/google/uuid"

	"github.com/invoyisi/resolution-service/internal/extraction"
	"github.com/invoyisi/resolution-service/internal/models"
)

// Via names the rule that produced a match.
type Via string

const (
	ViaEmail   Via = "email"
	ViaCompany Via = "company"
	ViaName    Via = "name"
	ViaPartial Via = "partial"
	ViaNone    Via = "none"
)

// Result is the outcome of matching one candidate against the client index.
type Result struct {
	ClientID uuid.UUID `json:"client_id,omitempty"`
	Matched  bool      `json:"matched"`
	Via      Via       `json:"via"`
}

// Match compares a client candidate's resolved fields against existing
// clients. Rules run in reliability order, first hit wins: exact email,
// exact company name, exact person name, then bidirectional substring
// containment (name before company). All comparisons are case-insensitive.
func Match(fields map[string]any, existing []models.Client) Result {
	name := normalized(fields[extraction.FieldName])
	email := normalized(fields[extraction.FieldEmail])
	company := normalized(fields[extraction.FieldCompany])

	if email != "" {
		for _, c := range existing {
			if c.Email != "" && strings.ToLower(c.Email) == email {
				return Result{ClientID: c.ID, Matched: true, Via: ViaEmail}
			}
		}
	}

	if company != "" {
		for _, c := range existing {
			if c.CompanyName != "" && strings.ToLower(c.CompanyName) == company {
				return Result{ClientID: c.ID, Matched: true, Via: ViaCompany}
			}
		}
	}

	if name != "" {
		for _, c := range existing {
			if c.Name != "" && strings.ToLower(c.Name) == name {
				return Result{ClientID: c.ID, Matched: true, Via: ViaName}
			}
		}
	}

	if name != "" {
		for _, c := range existing {
			if contains(strings.ToLower(c.Name), name) {
				return Result{ClientID: c.ID, Matched: true, Via: ViaPartial}
			}
		}
	}
	if company != "" {
		for _, c := range existing {
			if contains(strings.ToLower(c.CompanyName), company) {
				return Result{ClientID: c.ID, Matched: true, Via: ViaPartial}
			}
		}
	}

	return Result{Via: ViaNone}
}

// contains checks substring containment in both directions.
func contains(existing, candidate string) bool {
	if existing == "" || candidate == "" {
		return false
	}
	return strings.Contains(existing, candidate) || strings.Contains(candidate, existing)
}

func normalized(v any) string {
	s, _ := v.(string)
	return strings.ToLower(strings.TrimSpace(s))
}

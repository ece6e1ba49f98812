package match

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/invoyisi/resolution-service/internal/models"
)

func client(name, email, company string) models.Client {
	return models.Client{ID: uuid.New(), Name: name, Email: email, CompanyName: company}
}

func fields(name, email, company string) map[string]any {
	return map[string]any{"name": name, "email": email, "company_name": company}
}

func TestMatchEmailBeatsName(t *testing.T) {
	byEmail := client("Totally Different", "jane@coop.example", "")
	byName := client("Jane Cooper", "", "")

	res := Match(fields("Jane Cooper", "jane@coop.example", ""), []models.Client{byName, byEmail})

	assert.True(t, res.Matched)
	assert.Equal(t, ViaEmail, res.Via)
	assert.Equal(t, byEmail.ID, res.ClientID)
}

func TestMatchCompanyBeforeName(t *testing.T) {
	byCompany := client("Someone Else", "", "Cooper LLC")
	byName := client("Jane Cooper", "", "")

	res := Match(fields("Jane Cooper", "", "Cooper LLC"), []models.Client{byName, byCompany})

	assert.Equal(t, ViaCompany, res.Via)
	assert.Equal(t, byCompany.ID, res.ClientID)
}

func TestMatchExactNameCaseInsensitive(t *testing.T) {
	existing := client("JANE COOPER", "", "")

	res := Match(fields("jane cooper", "", ""), []models.Client{existing})

	assert.Equal(t, ViaName, res.Via)
	assert.Equal(t, existing.ID, res.ClientID)
}

func TestMatchPartialBidirectional(t *testing.T) {
	existing := client("Cooper", "", "")

	// Candidate contains existing.
	res := Match(fields("Jane Cooper", "", ""), []models.Client{existing})
	assert.Equal(t, ViaPartial, res.Via)

	// Existing contains candidate.
	wide := client("Jane Cooper & Sons", "", "")
	res = Match(fields("Cooper", "", ""), []models.Client{wide})
	assert.Equal(t, ViaPartial, res.Via)
	assert.Equal(t, wide.ID, res.ClientID)
}

func TestMatchPartialNameBeforeCompany(t *testing.T) {
	byCompanyPartial := client("Unrelated", "", "Cooper Holdings")
	byNamePartial := client("Cooper", "", "")

	res := Match(fields("Jane Cooper", "", "Cooper Holdings Ltd"),
		[]models.Client{byCompanyPartial, byNamePartial})

	assert.Equal(t, ViaPartial, res.Via)
	assert.Equal(t, byNamePartial.ID, res.ClientID)
}

func TestMatchNone(t *testing.T) {
	res := Match(fields("Nobody", "n@x.com", "Nothing Inc"),
		[]models.Client{client("Else", "e@y.com", "Other Corp")})

	assert.False(t, res.Matched)
	assert.Equal(t, ViaNone, res.Via)
	assert.Equal(t, uuid.Nil, res.ClientID)
}

func TestMatchEmptyCandidateNeverMatches(t *testing.T) {
	res := Match(fields("", "", ""), []models.Client{client("", "", "")})

	assert.False(t, res.Matched)
	assert.Equal(t, ViaNone, res.Via)
}

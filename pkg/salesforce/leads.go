package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadform/internal/model"
)

// LeadObject is the SObject leads are written to.
const LeadObject = "Lead"

// unknownCompany fills the required Lead.Company field when enrichment
// found nothing.
const unknownCompany = "[not provided]"

// Lead is the subset of a Salesforce Lead the mirror reads back.
type Lead struct {
	ID     string `json:"Id" salesforce:"Id"`
	Email  string `json:"Email" salesforce:"Email"`
	Status string `json:"Status" salesforce:"Status"`
}

// FindLeadByEmail returns the newest open Lead with the given email, or nil.
func FindLeadByEmail(ctx context.Context, c Client, email string) (*Lead, error) {
	soql := fmt.Sprintf(
		"SELECT Id, Email, Status FROM Lead WHERE Email = '%s' AND IsConverted = false ORDER BY CreatedDate DESC LIMIT 1",
		escapeSoql(strings.ToLower(email)),
	)
	var leads []Lead
	if err := c.Query(ctx, soql, &leads); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find lead by email %s", model.EmailDomain(email)))
	}
	if len(leads) == 0 {
		return nil, nil
	}
	return &leads[0], nil
}

// LeadFields maps a submission onto standard Lead fields.
func LeadFields(sub model.Submission) map[string]any {
	last := sub.LastName
	if last == "" {
		last = sub.Email
	}
	fields := map[string]any{
		"FirstName":   sub.FirstName,
		"LastName":    last,
		"Email":       strings.ToLower(sub.Email),
		"LeadSource":  "Web - " + string(sub.Kind),
		"Company":     companyName(sub.Email),
		"Description": fmt.Sprintf("Form %s, stage %s", sub.FormID, sub.Stage),
	}
	if c := sub.Company; c != nil {
		if c.LinkedIn != "" {
			fields["Website"] = c.LinkedIn
		}
		if c.Funding > 0 {
			fields["AnnualRevenue"] = c.Funding
		}
	}
	return fields
}

// UpsertLead updates the open Lead for the submission's email, or creates
// one. It returns the Lead ID and whether it was created.
func UpsertLead(ctx context.Context, c Client, sub model.Submission) (string, bool, error) {
	if sub.Email == "" {
		return "", false, eris.New("sf: lead email is required")
	}
	existing, err := FindLeadByEmail(ctx, c, sub.Email)
	if err != nil {
		return "", false, err
	}
	fields := LeadFields(sub)
	if existing != nil {
		if err := c.UpdateOne(ctx, LeadObject, existing.ID, fields); err != nil {
			return "", false, eris.Wrap(err, fmt.Sprintf("sf: update lead %s", existing.ID))
		}
		return existing.ID, false, nil
	}
	id, err := c.InsertOne(ctx, LeadObject, fields)
	if err != nil {
		return "", false, eris.Wrap(err, "sf: create lead")
	}
	return id, true, nil
}

// companyName derives a placeholder company name from the email domain.
func companyName(email string) string {
	domain := model.EmailDomain(email)
	if domain == "" {
		return unknownCompany
	}
	return domain
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}

package notion

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadform/internal/model"
)

// Lead database property names.
const (
	PropName     = "Name"
	PropEmail    = "Email"
	PropForm     = "Form"
	PropKind     = "Product"
	PropStage    = "Stage"
	PropSize     = "Company Size"
	PropFunding  = "Funding"
	PropLinkedIn = "LinkedIn"
	PropStatus   = "Status"
	PropLastSeen = "Last Submitted"
	PropCount    = "Submissions"
)

// FindLead returns the lead page for email, or nil when none exists.
func FindLead(ctx context.Context, c Client, dbID, email string) (*notionapi.Page, error) {
	resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: PropEmail,
			RichText: &notionapi.TextFilterCondition{
				Equals: strings.ToLower(email),
			},
		},
		PageSize: 1,
	})
	if err != nil {
		return nil, eris.Wrap(err, "notion: find lead")
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}

// LeadProperties maps a submission onto the lead database columns. Empty
// company fields are left out so an update never blanks known data.
func LeadProperties(sub model.Submission) notionapi.Properties {
	name := strings.TrimSpace(sub.FirstName + " " + sub.LastName)
	if name == "" {
		name = sub.Email
	}
	created := notionapi.Date(sub.CreatedAt)

	props := notionapi.Properties{
		PropName:     notionapi.TitleProperty{Title: text(name)},
		PropEmail:    notionapi.RichTextProperty{RichText: text(strings.ToLower(sub.Email))},
		PropForm:     notionapi.RichTextProperty{RichText: text(sub.FormID)},
		PropKind:     notionapi.SelectProperty{Select: notionapi.Option{Name: string(sub.Kind)}},
		PropStatus:   notionapi.StatusProperty{Status: notionapi.Status{Name: statusName(sub.Status)}},
		PropLastSeen: notionapi.DateProperty{Date: &notionapi.DateObject{Start: &created}},
	}
	if sub.Stage != "" {
		props[PropStage] = notionapi.SelectProperty{Select: notionapi.Option{Name: string(sub.Stage)}}
	}
	if c := sub.Company; c != nil {
		if c.Size != "" {
			props[PropSize] = notionapi.RichTextProperty{RichText: text(c.Size)}
		}
		if c.Funding > 0 {
			props[PropFunding] = notionapi.NumberProperty{Number: c.Funding}
		}
		if c.LinkedIn != "" {
			props[PropLinkedIn] = notionapi.URLProperty{URL: c.LinkedIn}
		}
	}
	return props
}

// UpsertLead creates the lead page for sub, or updates the existing page
// with the same email and bumps its submission count. It returns the page ID
// and whether a page was created.
func UpsertLead(ctx context.Context, c Client, dbID string, sub model.Submission) (string, bool, error) {
	if sub.Email == "" {
		return "", false, eris.New("notion: lead has no email")
	}
	existing, err := FindLead(ctx, c, dbID, sub.Email)
	if err != nil {
		return "", false, err
	}

	props := LeadProperties(sub)
	if existing == nil {
		props[PropCount] = notionapi.NumberProperty{Number: 1}
		page, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(dbID),
			},
			Properties: props,
		})
		if err != nil {
			return "", false, eris.Wrap(err, "notion: create lead")
		}
		return string(page.ID), true, nil
	}

	props[PropCount] = notionapi.NumberProperty{Number: submissionCount(*existing) + 1}
	pageID := string(existing.ID)
	if _, err := c.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
		return "", false, eris.Wrap(err, fmt.Sprintf("notion: update lead %s", pageID))
	}
	return pageID, false, nil
}

func submissionCount(p notionapi.Page) float64 {
	switch v := p.Properties[PropCount].(type) {
	case *notionapi.NumberProperty:
		return v.Number
	case notionapi.NumberProperty:
		return v.Number
	}
	return 0
}

func statusName(s model.SubmissionStatus) string {
	if s == model.SubmissionFailed {
		return "Webhook Failed"
	}
	return "New"
}

func text(s string) []notionapi.RichText {
	return []notionapi.RichText{{Text: &notionapi.Text{Content: s}}}
}

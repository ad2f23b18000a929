// Package meeting picks the scheduling-widget link for a demo page from the
// visitor's company stage, and prefills it with their contact details.
package meeting

import (
	"net/url"
	"strings"

	"github.com/sells-group/leadform/internal/cookies"
	"github.com/sells-group/leadform/internal/model"
	"github.com/sells-group/leadform/internal/stage"
)

// Links are the growth and enterprise scheduling links for one page.
type Links struct {
	Growth     string `mapstructure:"growth" json:"growth"`
	Enterprise string `mapstructure:"enterprise" json:"enterprise"`
}

// DefaultLinks maps demo page paths to their tiered scheduling links.
var DefaultLinks = map[string]Links{
	"/demo": {
		Growth:     "https://meetings.hubspot.com/micro1/micro1-demo",
		Enterprise: "https://meetings.hubspot.com/micro1/micro1-demo-enterprise",
	},
	"/zara-demo": {
		Growth:     "https://meetings.hubspot.com/micro1/ai-interviewer-demo",
		Enterprise: "https://meetings.hubspot.com/micro1/zara-demo-enterprise",
	},
	"/book-hiring-call": {
		Growth:     "https://meetings.hubspot.com/micro1/hiring-call",
		Enterprise: "https://meetings.hubspot.com/micro1/talent-demo-enterprise",
	},
	"/human-data-demo": {
		Growth:     "https://meetings.hubspot.com/micro1/micro1-rlhf-call-",
		Enterprise: "https://meetings.hubspot.com/micro1/human-data-demo-enterprise",
	},
}

// Picker chooses scheduling links.
type Picker struct {
	Links      map[string]Links
	Thresholds stage.Thresholds
}

// NewPicker returns a picker over links, falling back to DefaultLinks when
// links is empty. Links are classified with the meeting thresholds.
func NewPicker(links map[string]Links) *Picker {
	if len(links) == 0 {
		links = DefaultLinks
	}
	return &Picker{Links: links, Thresholds: stage.Meeting}
}

// TierLink returns the stage-specific link for path. Early-stage companies,
// unknown companies, and pages without tiered links get "".
func (p *Picker) TierLink(path string, company *model.CompanyProfile) string {
	if company.Empty() {
		return ""
	}
	links, ok := p.Links[path]
	if !ok {
		return ""
	}
	switch p.Thresholds.Profile(company) {
	case model.StageGrowth:
		return links.Growth
	case model.StageEnterprise:
		return links.Enterprise
	default:
		return ""
	}
}

// Link returns the widget source for path. A tiered link replaces fallback
// and is opened in embed mode; the contact is appended as query parameters
// only when first name, last name, and email are all known.
func (p *Picker) Link(path, fallback string, company *model.CompanyProfile, contact model.UserContactInfo) string {
	src := fallback
	if tier := p.TierLink(path, company); tier != "" {
		src = tier + "?embed=true"
	}
	if src == "" || !contact.Complete() {
		return src
	}

	q := url.Values{}
	q.Set("firstName", contact.FirstName)
	q.Set("lastName", contact.LastName)
	q.Set("email", contact.Email)
	sep := "?"
	if strings.Contains(src, "?") {
		sep = "&"
	}
	return src + sep + q.Encode()
}

// FromJar picks the link using the contact and company cookies in j.
func (p *Picker) FromJar(j cookies.Jar, path, fallback string) string {
	var company *model.CompanyProfile
	if c, ok := cookies.CompanyInfo.Get(j); ok {
		company = &c
	}
	contact, _ := cookies.UserContactInfo.Get(j)
	return p.Link(path, fallback, company, contact)
}

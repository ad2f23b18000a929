// Package tracking maintains the visitor attribution cookies and exposes
// them as an immutable snapshot.
package tracking

import (
	"net/url"
	"strings"

	"github.com/sells-group/leadform/internal/cookies"
	"github.com/sells-group/leadform/internal/model"
)

// Snapshot is the attribution context at one point in time. It is built
// from the cookie jar on every read and never mutated afterwards.
type Snapshot struct {
	UTM         cookies.UTM           `json:"utm"`
	User        model.UserContactInfo `json:"user"`
	Company     *model.CompanyProfile `json:"company,omitempty"`
	CurrentPage string                `json:"current_page,omitempty"`
	FirstPage   string                `json:"first_page,omitempty"`
	LastPage    string                `json:"last_page,omitempty"`
	Ref         string                `json:"ref,omitempty"`
	RefSite     string                `json:"ref_site,omitempty"`
	HUTK        string                `json:"hutk,omitempty"`
	Submitted   bool                  `json:"form_submitted,omitempty"`
}

// Read builds a snapshot from the jar.
func Read(j cookies.Jar) Snapshot {
	var s Snapshot
	s.UTM, _ = cookies.UTMContact.Get(j)
	s.User, _ = cookies.UserContactInfo.Get(j)
	if p, ok := cookies.CompanyInfo.Get(j); ok {
		s.Company = &p
	}
	s.FirstPage, _ = cookies.FirstPage.Get(j)
	s.LastPage, _ = cookies.LastPage.Get(j)
	s.Ref, _ = cookies.Ref.Get(j)
	if site, ok := cookies.RefSite.Get(j); ok && !ownHost(site) {
		s.RefSite = site
	}
	s.HUTK, _ = cookies.HubspotUTK.Get(j)
	_, s.Submitted = cookies.FormSubmitted.Get(j)
	return s
}

// WithCurrentPage returns a copy of s with the current page set.
func (s Snapshot) WithCurrentPage(page string) Snapshot {
	s.CurrentPage = page
	return s
}

// Fields flattens the snapshot into snake_case event properties.
func (s Snapshot) Fields() map[string]any {
	out := make(map[string]any)
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	put("utm_source", s.UTM.Source)
	put("utm_medium", s.UTM.Medium)
	put("utm_campaign", s.UTM.Campaign)
	put("utm_content", s.UTM.Content)
	put("utm_term", s.UTM.Term)
	put("current_page", s.CurrentPage)
	put("first_page", s.FirstPage)
	put("last_page", s.LastPage)
	put("ref", s.Ref)
	put("cus_ref", s.RefSite)
	put("hutk", s.HUTK)
	return out
}

// ownHost reports whether a referrer belongs to the site itself or one of
// its staging and scheduling hosts.
func ownHost(ref string) bool {
	return strings.Contains(ref, "micro1.ai") ||
		strings.Contains(ref, "staging") ||
		strings.Contains(ref, "meetings")
}

// pagePath returns the path of a page URL, with the root mapped to /home.
func pagePath(page string) string {
	if page == "" {
		return ""
	}
	p := page
	if u, err := url.Parse(page); err == nil && (u.Scheme != "" || strings.HasPrefix(page, "/")) {
		p = u.Path
	}
	if p == "" || p == "/" {
		return "/home"
	}
	return p
}

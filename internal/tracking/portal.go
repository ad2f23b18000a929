package tracking

import (
	"net/url"
	"strings"
)

// Portal sources passed as the src parameter on links into the product.
const (
	SourceAIInterviewer = "ai-interviewer"
	SourceCOR           = "cor"
	SourceSearchTalent  = "search-talent"
	SourceGeneral       = "general"
)

// PortalSource picks the src parameter for a page path.
func PortalSource(path string) string {
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(path, s) {
				return true
			}
		}
		return false
	}
	switch {
	case has("ai-recruiter", "saas", "zara", "pricing", "calculator"):
		return SourceAIInterviewer
	case has("cor", "onboard"):
		return SourceCOR
	case has("talent", "/tech/", "human-data", "vetting"):
		return SourceSearchTalent
	default:
		return SourceGeneral
	}
}

// PageParams are the attribution parameters appended to outbound links.
func (s Snapshot) PageParams() url.Values {
	v := url.Values{}
	add := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	add("utm_campaign", s.UTM.Campaign)
	add("utm_medium", s.UTM.Medium)
	add("utm_source", s.UTM.Source)
	add("utm_content", s.UTM.Content)
	add("utm_term", s.UTM.Term)
	add("first_page", pagePath(s.FirstPage))
	add("last_page", pagePath(s.CurrentPage))
	return v
}

// PortalParams extends PageParams with the visitor and source details the
// product portals read on sign-up. deviceID may be empty.
func (s Snapshot) PortalParams(path, deviceID string) url.Values {
	v := s.PageParams()
	add := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	add("first_name", s.User.FirstName)
	add("last_name", s.User.LastName)
	add("email", s.User.Email)
	if strings.Contains(path, "search-talent") || strings.Contains(path, "thank") || strings.Contains(path, "register") {
		v.Set("meeting", "booked")
	}
	v.Set("src", PortalSource(path))
	add("hutk", s.HUTK)
	add("ref_site", s.RefSite)
	add("deviceId", deviceID)
	if s.Submitted {
		v.Set("formSubmitted", "true")
	}
	return v
}

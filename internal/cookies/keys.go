package cookies

import (
	"net/mail"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadform/internal/model"
)

const day = 24 * time.Hour

// UTM is the attribution captured from campaign query parameters.
type UTM struct {
	Source   string `json:"utm_source,omitempty"`
	Medium   string `json:"utm_medium,omitempty"`
	Campaign string `json:"utm_campaign,omitempty"`
	Content  string `json:"utm_content,omitempty"`
	Term     string `json:"utm_term,omitempty"`
}

// Empty reports whether no UTM parameter is set.
func (u UTM) Empty() bool {
	return u == UTM{}
}

// Cookie keys shared by the forms, the resolver, and the page tracker.
var (
	UserContactInfo = Key[model.UserContactInfo]{
		Name:     "userContactInfo",
		TTL:      30 * day,
		Codec:    JSON[model.UserContactInfo](),
		Validate: validateContact,
	}
	CompanyInfo = Key[model.CompanyProfile]{
		Name:     "companyInfo",
		TTL:      30 * day,
		Codec:    JSON[model.CompanyProfile](),
		Validate: validateCompany,
	}
	// FormSubmissions keeps the site's historical cookie name.
	FormSubmissions = Key[int]{
		Name:  "numFormSubmissons",
		TTL:   90 * day,
		Codec: Int(),
		Validate: func(n int) error {
			if n < 0 {
				return eris.Errorf("negative counter %d", n)
			}
			return nil
		},
	}
	FormSubmitted       = Key[string]{Name: "formSubmitted", TTL: 7 * day, Codec: String()}
	TalentFormSubmitted = Key[string]{Name: "talentFormSubmitted", TTL: 7 * day, Codec: String()}
	UTMContact          = Key[UTM]{Name: "utm_cookie_contact", TTL: 30 * day, Codec: JSON[UTM]()}
	HubspotUTK          = Key[string]{Name: "hubspotutk", TTL: 180 * day, Codec: String()}
	RefSite             = Key[string]{Name: "cus_ref_site", TTL: 30 * day, Codec: String()}
	Ref                 = Key[string]{Name: "ref", TTL: 30 * day, Codec: String()}
	LastPage            = Key[string]{Name: "last_page", TTL: 30 * day, Codec: String()}
	FirstPage           = Key[string]{Name: "first_page", TTL: 30 * day, Codec: String()}
	Consent             = Key[string]{Name: "consent", TTL: 180 * day, Codec: String()}
)

func validateContact(c model.UserContactInfo) error {
	if c.Email == "" {
		return nil
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return eris.Wrap(err, "email")
	}
	return nil
}

func validateCompany(p model.CompanyProfile) error {
	if p.Funding < 0 {
		return eris.Errorf("negative funding %v", p.Funding)
	}
	return nil
}

// IncrementSubmissions bumps the rolling submission counter and returns the
// new value. A missing or corrupt counter restarts at 1.
func IncrementSubmissions(j Jar) (int, error) {
	n, _ := FormSubmissions.Get(j)
	n++
	return n, FormSubmissions.Set(j, n)
}

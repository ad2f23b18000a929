package meeting

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadform/internal/cookies"
	"github.com/sells-group/leadform/internal/model"
)

func TestTierLink(t *testing.T) {
	t.Parallel()
	p := NewPicker(nil)

	tests := []struct {
		name    string
		path    string
		company *model.CompanyProfile
		want    string
	}{
		{"unknown company", "/demo", nil, ""},
		{"empty company", "/demo", &model.CompanyProfile{}, ""},
		{"early stage", "/demo", &model.CompanyProfile{Size: "11-50 employees", Funding: 5_000_000}, ""},
		{"growth", "/demo", &model.CompanyProfile{Size: "201-500 employees"}, DefaultLinks["/demo"].Growth},
		{"growth up to 50M", "/zara-demo", &model.CompanyProfile{Funding: 50_000_000}, DefaultLinks["/zara-demo"].Growth},
		{"501-1,000 is growth for meetings", "/book-hiring-call", &model.CompanyProfile{Size: "501-1,000 employees"}, DefaultLinks["/book-hiring-call"].Growth},
		{"enterprise funding", "/human-data-demo", &model.CompanyProfile{Funding: 50_000_001}, DefaultLinks["/human-data-demo"].Enterprise},
		{"enterprise size", "/demo", &model.CompanyProfile{Size: "10,001+ employees"}, DefaultLinks["/demo"].Enterprise},
		{"page without tiers", "/pricing", &model.CompanyProfile{Funding: 1e9}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, p.TierLink(tt.path, tt.company))
		})
	}
}

func TestLink_EmbedAndPrefill(t *testing.T) {
	t.Parallel()
	p := NewPicker(nil)
	jane := model.UserContactInfo{FirstName: "Jane", LastName: "Doe", Email: "jane@acme.com"}
	ent := &model.CompanyProfile{Funding: 2e9}

	got := p.Link("/demo", "", ent, jane)
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "meetings.hubspot.com", u.Host)
	assert.Equal(t, "/micro1/micro1-demo-enterprise", u.Path)
	assert.Equal(t, "true", u.Query().Get("embed"))
	assert.Equal(t, "Jane", u.Query().Get("firstName"))
	assert.Equal(t, "jane@acme.com", u.Query().Get("email"))

	partial := model.UserContactInfo{FirstName: "Jane", Email: "jane@acme.com"}
	assert.Equal(t, DefaultLinks["/demo"].Enterprise+"?embed=true", p.Link("/demo", "", ent, partial))

	assert.Equal(t, "https://meetings.example/default?email=jane%40acme.com&firstName=Jane&lastName=Doe",
		p.Link("/pricing", "https://meetings.example/default", ent, jane))
	assert.Empty(t, p.Link("/pricing", "", ent, jane))
}

func TestFromJar(t *testing.T) {
	t.Parallel()
	p := NewPicker(map[string]Links{"/demo": {Growth: "https://g.example/x", Enterprise: "https://e.example/x"}})
	jar := cookies.NewMemoryJar()
	require.NoError(t, cookies.CompanyInfo.Set(jar, model.CompanyProfile{Size: "51-200 employees"}))

	assert.Equal(t, "https://g.example/x?embed=true", p.FromJar(jar, "/demo", "https://default.example"))
	assert.Equal(t, "https://default.example", p.FromJar(cookies.NewMemoryJar(), "/demo", "https://default.example"))
}

package tracking

import (
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/leadform/internal/cookies"
)

// PageView is one page load as seen by the tracker.
type PageView struct {
	URL      *url.URL
	Referrer string
}

// Record updates the attribution cookies for a page view and returns the
// resulting snapshot.
func Record(j cookies.Jar, pv PageView) Snapshot {
	q := url.Values{}
	page := ""
	if pv.URL != nil {
		q = pv.URL.Query()
		page = pv.URL.String()
	}

	storeUTM(j, q)
	organicSocialRef(j, pv.Referrer)
	storeRefSite(j, pv.Referrer)
	last := trackPages(j, q, page)
	if ref := q.Get("ref"); ref != "" {
		set(cookies.Ref, j, ref)
	}

	snap := Read(j).WithCurrentPage(page)
	snap.LastPage = last
	return snap
}

// storeUTM saves campaign parameters unless a visit without a campaign
// would overwrite a stored one.
func storeUTM(j cookies.Jar, q url.Values) {
	utm := cookies.UTM{
		Source:   q.Get("utm_source"),
		Medium:   q.Get("utm_medium"),
		Campaign: q.Get("utm_campaign"),
		Content:  q.Get("utm_content"),
		Term:     q.Get("utm_term"),
	}
	if utm.Empty() {
		return
	}
	if cur, ok := cookies.UTMContact.Get(j); ok && utm.Campaign == "" && cur.Campaign != "" {
		return
	}
	set(cookies.UTMContact, j, utm)
}

// organicSocialRef attributes Twitter and LinkedIn referrals when no
// campaign attribution exists yet.
func organicSocialRef(j cookies.Jar, ref string) {
	var source string
	switch {
	case strings.Contains(ref, "linkedin.com"), strings.Contains(ref, "lnkd.in"):
		source = "LinkedIn"
	case strings.Contains(ref, "//t.co/"):
		source = "Twitter"
	default:
		return
	}
	if _, ok := j.Get(cookies.UTMContact.Name); ok {
		return
	}
	set(cookies.UTMContact, j, cookies.UTM{Source: source, Medium: "social"})
}

// storeRefSite remembers the host of an external referrer.
func storeRefSite(j cookies.Jar, ref string) {
	if ref == "" || ownHost(ref) {
		return
	}
	u, err := url.Parse(ref)
	if err != nil {
		zap.L().Debug("tracking: unparsable referrer", zap.String("referrer", ref), zap.Error(err))
		return
	}
	host := u.Host
	if host == "" {
		host = u.Path
	}
	if host == "" {
		return
	}
	set(cookies.RefSite, j, host)
}

// trackPages points last_page at this page, sets first_page once, and
// returns the previous page (from the cookie or the last_page parameter).
func trackPages(j cookies.Jar, q url.Values, page string) string {
	last, ok := cookies.LastPage.Get(j)
	if !ok {
		last = q.Get("last_page")
	}
	if page == "" {
		return last
	}
	set(cookies.LastPage, j, page)

	if _, ok := cookies.FirstPage.Get(j); !ok {
		fp := q.Get("first_page")
		if fp == "" {
			fp = page
		}
		set(cookies.FirstPage, j, fp)
	}
	return last
}

func set[T any](k cookies.Key[T], j cookies.Jar, v T) {
	if err := k.Set(j, v); err != nil {
		zap.L().Warn("tracking: cookie write failed", zap.String("cookie", k.Name), zap.Error(err))
	}
}

package enrich

import "strings"

// freeDomains are consumer mailbox providers; an address on one of them
// says nothing about the sender's company.
var freeDomains = map[string]struct{}{
	"gmail.com":      {},
	"googlemail.com": {},
	"yahoo.com":      {},
	"yahoo.co.uk":    {},
	"yahoo.co.in":    {},
	"yahoo.fr":       {},
	"yahoo.de":       {},
	"yahoo.it":       {},
	"yahoo.es":       {},
	"yahoo.ca":       {},
	"hotmail.com":    {},
	"outlook.com":    {},
	"live.com":       {},
	"msn.com":        {},
	"icloud.com":     {},
	"me.com":         {},
	"mac.com":        {},
	"aol.com":        {},
	"protonmail.com": {},
	"proton.me":      {},
	"zoho.com":       {},
	"yandex.com":     {},
	"yandex.ru":      {},
	"mail.ru":        {},
	"gmx.com":        {},
	"gmx.de":         {},
	"web.de":         {},
	"qq.com":         {},
	"163.com":        {},
	"126.com":        {},
	"naver.com":      {},
	"daum.net":       {},
	"rediffmail.com": {},
	"pm.me":          {},
}

// IsFreeEmailDomain reports whether domain belongs to a consumer provider.
func IsFreeEmailDomain(domain string) bool {
	_, ok := freeDomains[strings.ToLower(strings.TrimSpace(domain))]
	return ok
}

// FreeEmailDomains returns the number of known consumer providers.
func FreeEmailDomains() int { return len(freeDomains) }

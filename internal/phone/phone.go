// Package phone validates and canonicalises phone numbers entered in forms.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
	"github.com/rotisserie/eris"
)

// Validator checks a phone number and returns its canonical form.
type Validator interface {
	Valid(raw string) bool
	Canonical(raw string) (string, error)
}

// Libphone validates numbers with libphonenumber metadata. Numbers without
// a leading + are parsed in DefaultRegion.
type Libphone struct {
	DefaultRegion string
}

// New returns a validator for the given ISO 3166 region, defaulting to US.
func New(region string) *Libphone {
	if region == "" {
		region = "US"
	}
	return &Libphone{DefaultRegion: strings.ToUpper(region)}
}

func (l *Libphone) parse(raw string) (*phonenumbers.PhoneNumber, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, eris.New("phone: empty number")
	}
	num, err := phonenumbers.Parse(raw, l.DefaultRegion)
	if err != nil {
		return nil, eris.Wrapf(err, "phone: parse %q", raw)
	}
	return num, nil
}

// Valid reports whether raw is a dialable number.
func (l *Libphone) Valid(raw string) bool {
	num, err := l.parse(raw)
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(num)
}

// Canonical returns raw in E.164 format.
func (l *Libphone) Canonical(raw string) (string, error) {
	num, err := l.parse(raw)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", eris.Errorf("phone: %q is not a valid number", raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

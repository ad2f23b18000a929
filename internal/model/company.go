package model

import (
	"fmt"
	"math"
)

// Stage is the coarse funding/size bucket a company falls into.
type Stage string

const (
	StageEarly      Stage = "Early Stage"
	StageGrowth     Stage = "Growth"
	StageEnterprise Stage = "Enterprise"
)

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	switch s {
	case StageEarly, StageGrowth, StageEnterprise:
		return true
	default:
		return false
	}
}

// CompanyProfile is the firmographic record returned by an enrichment lookup.
// A zero Funding means the provider reported no funding.
type CompanyProfile struct {
	Size     string  `json:"size,omitempty"`
	Funding  float64 `json:"funding,omitempty"`
	LinkedIn string  `json:"linkedin,omitempty"`
}

// Empty reports whether the profile carries no usable data.
func (p *CompanyProfile) Empty() bool {
	return p == nil || (p.Size == "" && p.Funding == 0 && p.LinkedIn == "")
}

// Fields returns the profile as a flat property map for event payloads.
func (p *CompanyProfile) Fields() map[string]any {
	out := make(map[string]any, 3)
	if p == nil {
		return out
	}
	if p.Size != "" {
		out["size"] = p.Size
	}
	if p.Funding != 0 {
		out["funding"] = p.Funding
	}
	if p.LinkedIn != "" {
		out["linkedin"] = p.LinkedIn
	}
	return out
}

// FormatFunding renders a funding amount as a short currency label ($5M, $120K).
func FormatFunding(value float64) string {
	switch {
	case value >= 1e9:
		return fmt.Sprintf("$%dB", int64(math.Round(value/1e9)))
	case value >= 1e6:
		return fmt.Sprintf("$%dM", int64(math.Round(value/1e6)))
	case value >= 1e3:
		return fmt.Sprintf("$%dK", int64(math.Round(value/1e3)))
	default:
		return fmt.Sprintf("$%d", int64(math.Round(value)))
	}
}

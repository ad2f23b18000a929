// Package stage classifies companies into funding/size tiers.
package stage

import "github.com/sells-group/leadform/internal/model"

// EarlyFundingCap is the inclusive funding ceiling for early-stage companies.
const EarlyFundingCap = 5_000_000

// Growth funding ceilings differ between the two places the tier is used.
// Both are kept until one is confirmed canonical.
const (
	// PortalGrowthFundingCap applies to the post-submission portal path.
	PortalGrowthFundingCap = 30_000_000
	// MeetingGrowthFundingCap applies to the scheduling-link picker.
	MeetingGrowthFundingCap = 50_000_000
)

// earlySizes are the micro/small employee brackets, in every spelling the
// enrichment providers return.
var earlySizes = []string{
	"Self-employed",
	"1 employee",
	"1-10 employees",
	"2-10 employees",
	"11-50 employees",
	"1-10",
	"11-50",
}

var growthSizes = []string{
	"51-200 employees",
	"201-500 employees",
	"51-200",
	"201-500",
}

var meetingExtraSizes = []string{
	"501-1,000 employees",
	"501-1000",
}

// Thresholds configures one classification call site.
type Thresholds struct {
	EarlyFundingCap  float64
	GrowthFundingCap float64
	EarlySizes       map[string]bool
	GrowthSizes      map[string]bool
}

// Portal is the classification used after form submission.
var Portal = newThresholds(PortalGrowthFundingCap, nil)

// Meeting is the classification used to pick scheduling-widget links.
var Meeting = newThresholds(MeetingGrowthFundingCap, meetingExtraSizes)

func newThresholds(growthCap float64, extra []string) Thresholds {
	t := Thresholds{
		EarlyFundingCap:  EarlyFundingCap,
		GrowthFundingCap: growthCap,
		EarlySizes:       make(map[string]bool),
		GrowthSizes:      make(map[string]bool),
	}
	for _, s := range earlySizes {
		t.EarlySizes[s] = true
		t.GrowthSizes[s] = true
	}
	for _, s := range growthSizes {
		t.GrowthSizes[s] = true
	}
	for _, s := range extra {
		t.GrowthSizes[s] = true
	}
	return t
}

// Classify returns the stage for a size bracket and funding amount.
// An empty size and a zero funding are treated as absent.
func (t Thresholds) Classify(size string, funding float64) model.Stage {
	if (size == "" || t.EarlySizes[size]) && (funding == 0 || funding <= t.EarlyFundingCap) {
		return model.StageEarly
	}
	if (size == "" || t.GrowthSizes[size]) && (funding == 0 || funding <= t.GrowthFundingCap) {
		return model.StageGrowth
	}
	return model.StageEnterprise
}

// Profile classifies a company profile; a nil profile is early stage.
func (t Thresholds) Profile(p *model.CompanyProfile) model.Stage {
	if p == nil {
		return model.StageEarly
	}
	return t.Classify(p.Size, p.Funding)
}

// Classify classifies with the Portal thresholds.
func Classify(size string, funding float64) model.Stage {
	return Portal.Classify(size, funding)
}

// ByName returns the named threshold profile ("portal" or "meeting").
func ByName(name string) (Thresholds, bool) {
	switch name {
	case "", "portal":
		return Portal, true
	case "meeting":
		return Meeting, true
	default:
		return Thresholds{}, false
	}
}

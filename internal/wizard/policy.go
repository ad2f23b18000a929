package wizard

// FailurePolicy decides what happens to the submit control after a failed
// webhook delivery.
type FailurePolicy int

const (
	// KeepDisabled leaves the control disabled with its waiting label, so
	// the visitor cannot retry without reloading the form.
	KeepDisabled FailurePolicy = iota
	// Reenable restores the control so the visitor can retry.
	Reenable
)

func (p FailurePolicy) String() string {
	if p == Reenable {
		return "reenable"
	}
	return "keep-disabled"
}

// ParseFailurePolicy maps a config value to a policy; unknown values keep
// the control disabled.
func ParseFailurePolicy(s string) FailurePolicy {
	if s == "reenable" {
		return Reenable
	}
	return KeepDisabled
}

// afterFailure applies the policy to the submit control and reports whether
// the control is still disabled.
func (p FailurePolicy) afterFailure(v View) bool {
	if p == Reenable {
		v.SetSubmit(SubmitLabel, false)
		return false
	}
	return true
}

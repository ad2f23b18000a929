package wizard

import (
	"sort"
	"sync"
)

// View is the presentation surface a session drives. Each method corresponds
// to one element the form used to look up at call time.
type View interface {
	// SetStepClasses replaces the animation classes on a step container.
	SetStepClasses(step int, classes []string)
	// SetProgress sets the progress bar width in percent.
	SetProgress(percent int)
	// SetPrevVisible shows or hides the back button.
	SetPrevVisible(visible bool)
	MarkInvalid(field string)
	ClearInvalid(field string)
	Focus(field string)
	// ShowError sets and reveals the step's shared error region.
	ShowError(step int, message string)
	HideError(step int)
	// SetSubmit updates the submit control's label and disabled state.
	SetSubmit(label string, disabled bool)
	// AppendStepError adds an inline error below the step's content.
	AppendStepError(step int, message string)
	ShowPersonalEmailNotice()
	Navigate(path string)
}

// ViewState is a point-in-time copy of everything a Recorder has been told.
type ViewState struct {
	Classes        map[int][]string `json:"classes"`
	Progress       int              `json:"progress"`
	PrevVisible    bool             `json:"prev_visible"`
	Invalid        []string         `json:"invalid,omitempty"`
	Focused        string           `json:"focused,omitempty"`
	Errors         map[int]string   `json:"errors,omitempty"`
	StepErrors     map[int][]string `json:"step_errors,omitempty"`
	SubmitLabel    string           `json:"submit_label"`
	SubmitDisabled bool             `json:"submit_disabled"`
	PersonalNotice bool             `json:"personal_email_notice,omitempty"`
	NavigatedTo    string           `json:"navigated_to,omitempty"`
}

// Recorder is a View that keeps the rendered state in memory. The HTTP API
// returns it to the browser, and tests assert against it.
type Recorder struct {
	mu sync.Mutex
	st ViewState
	// errText survives HideError, the way the DOM keeps an error region's
	// text while it is hidden.
	errText map[int]string
	invalid map[string]bool
}

// NewRecorder returns an empty recorder with the given submit label.
func NewRecorder(submitLabel string) *Recorder {
	return &Recorder{
		st: ViewState{
			Classes:     make(map[int][]string),
			Errors:      make(map[int]string),
			StepErrors:  make(map[int][]string),
			SubmitLabel: submitLabel,
		},
		errText: make(map[int]string),
		invalid: make(map[string]bool),
	}
}

func (r *Recorder) SetStepClasses(step int, classes []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.Classes[step] = append([]string(nil), classes...)
}

func (r *Recorder) SetProgress(percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.Progress = percent
}

func (r *Recorder) SetPrevVisible(visible bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.PrevVisible = visible
}

func (r *Recorder) MarkInvalid(field string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalid[field] = true
}

func (r *Recorder) ClearInvalid(field string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.invalid, field)
}

func (r *Recorder) Focus(field string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.Focused = field
}

func (r *Recorder) ShowError(step int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if message != "" {
		r.errText[step] = message
	}
	r.st.Errors[step] = r.errText[step]
}

func (r *Recorder) HideError(step int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.st.Errors, step)
}

func (r *Recorder) SetSubmit(label string, disabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.SubmitLabel = label
	r.st.SubmitDisabled = disabled
}

func (r *Recorder) AppendStepError(step int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.StepErrors[step] = append(r.st.StepErrors[step], message)
}

func (r *Recorder) ShowPersonalEmailNotice() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.PersonalNotice = true
}

func (r *Recorder) Navigate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.NavigatedTo = path
}

// State returns a deep copy of the recorded view.
func (r *Recorder) State() ViewState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.st
	out.Classes = make(map[int][]string, len(r.st.Classes))
	for k, v := range r.st.Classes {
		out.Classes[k] = append([]string(nil), v...)
	}
	out.Errors = make(map[int]string, len(r.st.Errors))
	for k, v := range r.st.Errors {
		out.Errors[k] = v
	}
	out.StepErrors = make(map[int][]string, len(r.st.StepErrors))
	for k, v := range r.st.StepErrors {
		out.StepErrors[k] = append([]string(nil), v...)
	}
	out.Invalid = make([]string, 0, len(r.invalid))
	for f := range r.invalid {
		out.Invalid = append(out.Invalid, f)
	}
	sort.Strings(out.Invalid)
	return out
}

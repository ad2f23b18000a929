// Package wizard runs a multi-step lead form as a state machine: step
// navigation, per-step validation, progress, keyboard handling, and the
// submit protocol.
package wizard

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/leadform/internal/analytics"
	"github.com/sells-group/leadform/internal/model"
	"github.com/sells-group/leadform/internal/phone"
	"github.com/sells-group/leadform/internal/webhook"
)

var (
	// ErrStepInvalid is wrapped by every validation failure.
	ErrStepInvalid = eris.New("wizard: step is invalid")
	// ErrSubmitInFlight is returned while the submit control is disabled.
	ErrSubmitInFlight = eris.New("wizard: submit control is disabled")
	// ErrAlreadySubmitted is returned by every operation after a successful submit.
	ErrAlreadySubmitted = eris.New("wizard: form already submitted")
	// ErrWebhookFailed wraps a failed webhook delivery.
	ErrWebhookFailed = eris.New("wizard: webhook delivery failed")
	// ErrNotFinalStep is returned by Submit before the last step.
	ErrNotFinalStep = eris.New("wizard: submit is only available on the final step")
	// ErrUnknownField is returned when a field or choice is not on the form.
	ErrUnknownField = eris.New("wizard: unknown field")
)

// Submit control labels.
const (
	SubmitLabel  = "Submit"
	WaitingLabel = "Please wait..."
)

// Resolver looks up the company behind an email address.
type Resolver interface {
	Resolve(ctx context.Context, email string) (*model.CompanyProfile, error)
}

// Pixel fires the ad-platform conversion for a form kind.
type Pixel interface {
	Fire(ctx context.Context, kind model.FormKind, userID string)
}

// SubmissionLog receives a record of every submit attempt that reached the
// webhook.
type SubmissionLog interface {
	Record(ctx context.Context, s model.Submission) error
}

// Deps are the collaborators a session is built with. Only View and Webhook
// are required.
type Deps struct {
	View     View
	Webhook  webhook.Submitter
	Resolver Resolver
	Tracker  analytics.Tracker
	Pixel    Pixel
	// Phone validates tel inputs; without one every number is accepted.
	Phone  phone.Validator
	Log    SubmissionLog
	Policy FailurePolicy
	Now    func() time.Time
}

type choiceRef struct {
	step  int
	group *model.ChoiceGroup
}

// Session is one visitor's pass through a form.
type Session struct {
	id   string
	form model.Form
	deps Deps

	fields  map[string]model.Field
	fieldAt map[string]int
	choices map[string]choiceRef

	mu             sync.Mutex
	current        int
	values         map[string]string
	checked        map[string]map[string]bool
	uploading      map[int]bool
	classes        []map[string]bool
	submitDisabled bool
	submitted      bool
	createdAt      time.Time

	recording sync.WaitGroup
}

// New creates a session positioned on the first step and renders it.
func New(form model.Form, deps Deps) (*Session, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	if deps.View == nil || deps.Webhook == nil {
		return nil, eris.New("wizard: view and webhook are required")
	}
	if deps.Tracker == nil {
		deps.Tracker = analytics.Discard{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := &Session{
		id:        uuid.NewString(),
		form:      form,
		deps:      deps,
		fields:    make(map[string]model.Field),
		fieldAt:   make(map[string]int),
		choices:   make(map[string]choiceRef),
		values:    make(map[string]string),
		checked:   make(map[string]map[string]bool),
		uploading: make(map[int]bool),
		classes:   make([]map[string]bool, len(form.Steps)),
		createdAt: deps.Now(),
	}
	for i := range form.Steps {
		st := &form.Steps[i]
		for _, f := range st.Inputs {
			s.fields[f.Name] = f
			s.fieldAt[f.Name] = i
		}
		if st.Choices != nil {
			s.choices[st.Choices.Name] = choiceRef{step: i, group: st.Choices}
			s.checked[st.Choices.Name] = make(map[string]bool)
			if st.Choices.OtherField != "" {
				s.fields[st.Choices.OtherField] = model.Field{Name: st.Choices.OtherField, Type: model.FieldText}
				s.fieldAt[st.Choices.OtherField] = i
			}
		}
		if st.Hidden != "" {
			s.fields[st.Hidden] = model.Field{Name: st.Hidden, Type: model.FieldHidden}
			s.fieldAt[st.Hidden] = i
		}
		s.classes[i] = make(map[string]bool)
		if i > 0 {
			s.classes[i]["next"] = true
		}
	}

	s.mu.Lock()
	s.showStep(0, false)
	s.mu.Unlock()
	deps.View.SetSubmit(SubmitLabel, false)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Form returns the form definition the session runs.
func (s *Session) Form() model.Form { return s.form }

// Current returns the active step index.
func (s *Session) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Progress returns the progress bar width in percent.
func (s *Session) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return progress(s.current, len(s.form.Steps))
}

// progress pins the first step to 10% so the bar is never empty.
func progress(current, steps int) int {
	if current == 0 {
		return 10
	}
	return int(math.Round(float64(current+1) / float64(steps) * 100))
}

// StepClasses returns the animation classes on step i, sorted.
func (s *Session) StepClasses(i int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.classes) {
		return nil
	}
	return sortedClasses(s.classes[i])
}

func sortedClasses(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for c, on := range m {
		if on {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// showStep renders a move onto step n, mirroring the class hand-off of the
// original slide animation. Callers hold s.mu.
func (s *Session) showStep(n int, backward bool) {
	view := s.deps.View
	touch := func(i int, remove, add string) {
		if i < 0 || i >= len(s.classes) {
			return
		}
		delete(s.classes[i], remove)
		s.classes[i][add] = true
		view.SetStepClasses(i, sortedClasses(s.classes[i]))
	}

	if backward {
		touch(n+1, "active", "next")
		touch(n, "prev", "active")
	} else {
		touch(n-1, "active", "prev")
		touch(n, "next", "active")
	}
	view.SetProgress(progress(n, len(s.form.Steps)))
	view.SetPrevVisible(n != 0)
}

// SetValue records an edit to a text-like input and clears its error state.
func (s *Session) SetValue(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitted {
		return ErrAlreadySubmitted
	}
	step, ok := s.fieldAt[name]
	if !ok {
		return eris.Wrapf(ErrUnknownField, "%s", name)
	}
	s.values[name] = norm.NFC.String(value)
	s.deps.View.ClearInvalid(name)
	s.deps.View.HideError(step)
	return nil
}

// Value returns the current value of an input.
func (s *Session) Value(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[name]
}

// Check sets an option's checked state. Checking a radio clears its siblings.
func (s *Session) Check(group, value string, checked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitted {
		return ErrAlreadySubmitted
	}
	ref, ok := s.choices[group]
	if !ok || !hasOption(ref.group, value) {
		return eris.Wrapf(ErrUnknownField, "%s=%s", group, value)
	}
	if checked && ref.group.Kind == model.ChoiceRadio {
		clear(s.checked[group])
	}
	if checked {
		s.checked[group][value] = true
	} else {
		delete(s.checked[group], value)
	}
	s.deps.View.HideError(ref.step)
	return nil
}

func hasOption(g *model.ChoiceGroup, value string) bool {
	for _, o := range g.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// SetUploading marks a file upload on step as in progress or finished.
func (s *Session) SetUploading(step int, uploading bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if step < 0 || step >= len(s.form.Steps) {
		return eris.Errorf("wizard: step %d out of range", step)
	}
	if uploading {
		s.uploading[step] = true
	} else {
		delete(s.uploading, step)
	}
	return nil
}

// Next validates the current step and advances one step. On the last step
// it validates but does not move.
func (s *Session) Next(ctx context.Context) error {
	s.mu.Lock()
	if s.submitted {
		s.mu.Unlock()
		return ErrAlreadySubmitted
	}
	from := s.current
	s.aggregateChecked(from)
	if err := s.verify(from); err != nil {
		s.mu.Unlock()
		return err
	}
	if from+1 > len(s.form.Steps)-1 {
		s.mu.Unlock()
		return nil
	}
	s.current++
	s.showStep(s.current, false)

	personal := s.personalEmailOn(from)
	ev := s.movedStepEvent(from, s.current, true)
	s.mu.Unlock()

	if personal {
		s.deps.View.ShowPersonalEmailNotice()
	}
	analytics.BestEffort(ctx, s.deps.Tracker, ev)
	return nil
}

// Prev moves back one step without validation. On the first step it is a no-op.
func (s *Session) Prev() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitted {
		return ErrAlreadySubmitted
	}
	if s.current-1 < 0 {
		return nil
	}
	s.current--
	s.showStep(s.current, true)
	return nil
}

// aggregateChecked joins the labels of checked boxes, plus the free-text
// other answer, into the step's hidden input. Callers hold s.mu.
func (s *Session) aggregateChecked(step int) {
	st := s.form.Steps[step]
	if st.Hidden == "" || st.Choices == nil || st.Choices.Kind != model.ChoiceCheckbox {
		return
	}
	var parts []string
	for _, o := range st.Choices.Options {
		if s.checked[st.Choices.Name][o.Value] {
			parts = append(parts, o.DisplayLabel())
		}
	}
	if st.HasOtherOption == model.ChoiceCheckbox && st.Choices.OtherField != "" {
		if v := s.values[st.Choices.OtherField]; v != "" {
			parts = append(parts, v)
		}
	}
	s.values[st.Hidden] = strings.Join(parts, ", ")
}

// personalEmailOn reports whether step holds an email on a consumer
// provider the notice cares about. Callers hold s.mu.
func (s *Session) personalEmailOn(step int) bool {
	for _, f := range s.form.Steps[step].Inputs {
		if f.Type != model.FieldEmail {
			continue
		}
		v := s.values[f.Name]
		for _, p := range personalProviders {
			if strings.Contains(strings.ToLower(v), p) {
				return true
			}
		}
	}
	return false
}

var personalProviders = []string{"gmail", "yahoo", "icloud"}

// movedStepEvent builds the step-progress analytics event for leaving step
// from. Callers hold s.mu.
func (s *Session) movedStepEvent(from, step int, withAnswer bool) analytics.Event {
	props := map[string]any{
		"product":  string(s.form.Kind),
		"step":     step,
		"question": s.form.Steps[from].Title,
	}
	if withAnswer && s.form.Kind == model.FormGeneral && step == 1 {
		if g := s.form.Steps[from].Choices; g != nil && g.Kind == model.ChoiceRadio {
			for v, on := range s.checked[g.Name] {
				if on {
					props["answer"] = v
				}
			}
		}
	}
	return analytics.Event{
		DeviceID:   s.id,
		Type:       analytics.EventMovedStep,
		Properties: props,
		Time:       s.deps.Now(),
	}
}

// State is a serialisable snapshot of the session.
type State struct {
	ID             string              `json:"id"`
	FormID         string              `json:"form_id"`
	Kind           model.FormKind      `json:"kind"`
	Current        int                 `json:"current"`
	StepCount      int                 `json:"step_count"`
	Title          string              `json:"title"`
	Progress       int                 `json:"progress"`
	Classes        [][]string          `json:"classes"`
	Values         map[string]string   `json:"values"`
	Checked        map[string][]string `json:"checked"`
	SubmitDisabled bool                `json:"submit_disabled"`
	Submitted      bool                `json:"submitted"`
	CreatedAt      time.Time           `json:"created_at"`
}

// State returns a copy of the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		ID:             s.id,
		FormID:         s.form.ID,
		Kind:           s.form.Kind,
		Current:        s.current,
		StepCount:      len(s.form.Steps),
		Title:          s.form.Steps[s.current].Title,
		Progress:       progress(s.current, len(s.form.Steps)),
		Classes:        make([][]string, len(s.classes)),
		Values:         make(map[string]string, len(s.values)),
		Checked:        make(map[string][]string, len(s.checked)),
		SubmitDisabled: s.submitDisabled,
		Submitted:      s.submitted,
		CreatedAt:      s.createdAt,
	}
	for i, c := range s.classes {
		st.Classes[i] = sortedClasses(c)
	}
	for k, v := range s.values {
		st.Values[k] = v
	}
	for g, set := range s.checked {
		st.Checked[g] = sortedClasses(set)
	}
	return st
}

package wizard

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadform/internal/analytics"
	"github.com/sells-group/leadform/internal/cookies"
	"github.com/sells-group/leadform/internal/enrich"
	"github.com/sells-group/leadform/internal/model"
	"github.com/sells-group/leadform/internal/stage"
	"github.com/sells-group/leadform/internal/tracking"
	"github.com/sells-group/leadform/internal/webhook"
)

// MsgSubmitFailed is shown inline when the webhook rejects a submission.
const MsgSubmitFailed = "Form not submitted! Please try again later or contact support@micro1.ai"

// Company input names filled from the enrichment result.
const (
	FieldCompanySize     = "company-size"
	FieldCompanyFunding  = "company-funding"
	FieldCompanyLinkedIn = "company-linkedin"
	FieldFormType        = "form-type"
	// FieldGeneralRequirement is the general form's "what do you need" answer.
	FieldGeneralRequirement = "general-requirement"
)

// notEnriched marks a company size that could not be looked up.
const notEnriched = "couldn't enrich"

// requirementRedirects route general-interest leads by their stated need.
var requirementRedirects = map[string]string{
	"Hire pre-vetted talent":        "/book-hiring-call",
	"Interview your own candidates": "/zara-demo",
}

// Outcome is the result of a successful submit.
type Outcome struct {
	SubmissionID string                `json:"submission_id"`
	RedirectPath string                `json:"redirect_path"`
	Contact      model.UserContactInfo `json:"contact"`
	Company      *model.CompanyProfile `json:"company,omitempty"`
	Stage        model.Stage           `json:"stage"`
	Event        map[string]any        `json:"event"`
}

// Submit runs the submit protocol: validate the final step, lock the submit
// control, shape and persist the contact, enrich, pick the redirect, and
// post to the webhook. Enrichment never blocks submission. A webhook failure
// is rendered inline and the control is handled per the failure policy.
func (s *Session) Submit(ctx context.Context, jar cookies.Jar) (*Outcome, error) {
	if jar == nil {
		jar = cookies.NewMemoryJar()
	}

	s.mu.Lock()
	switch {
	case s.submitted:
		s.mu.Unlock()
		return nil, ErrAlreadySubmitted
	case s.submitDisabled:
		s.mu.Unlock()
		return nil, ErrSubmitInFlight
	case s.current != len(s.form.Steps)-1:
		s.mu.Unlock()
		return nil, ErrNotFinalStep
	}
	if err := s.verify(s.current); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	step := s.current
	moved := s.movedStepEvent(step, step+1, false)
	s.submitDisabled = true
	s.deps.View.SetSubmit(WaitingLabel, true)

	fields := s.payloadFields()
	s.mu.Unlock()

	analytics.BestEffort(ctx, s.deps.Tracker, moved)

	formObj := attributionFields(fields)
	contact := model.UserContactInfo{
		FirstName: fields.get(s.form.FirstNameField()),
		LastName:  fields.get(s.form.LastNameField()),
		Email:     fields.get(s.form.EmailField()),
	}
	s.persistContact(jar, contact)

	if s.deps.Pixel != nil {
		s.deps.Pixel.Fire(ctx, s.form.Kind, contact.Email)
	}

	company := s.enrich(ctx, jar, contact.Email, &fields)

	redirect := s.form.RedirectPath
	if s.form.Kind == model.FormGeneral {
		if p, ok := requirementRedirects[fields.get(FieldGeneralRequirement)]; ok {
			redirect = p
		}
	}

	event := eventParams(company, contact, formObj, redirect, s.form.Kind)

	payload := fields.payload()
	payload.Add(FieldFormType, string(s.form.Kind))
	addAttribution(&payload, tracking.Read(jar))

	sub := model.Submission{
		ID:           uuid.NewString(),
		FormID:       s.form.ID,
		Kind:         s.form.Kind,
		Email:        contact.Email,
		FirstName:    contact.FirstName,
		LastName:     contact.LastName,
		RedirectPath: redirect,
		Company:      company,
		Stage:        stage.Portal.Profile(company),
		Fields:       formObj,
		CreatedAt:    s.deps.Now(),
	}

	if err := s.deps.Webhook.Submit(ctx, payload); err != nil {
		sub.Status = model.SubmissionFailed
		sub.Error = err.Error()
		failed := s.failSubmit(step, err)
		s.record(ctx, sub)
		return nil, failed
	}

	sub.Status = model.SubmissionSubmitted

	analytics.BestEffort(ctx, s.deps.Tracker, analytics.Event{
		UserID:     contact.Email,
		DeviceID:   s.id,
		Type:       analytics.EventFormSubmitted,
		Properties: event,
		Time:       s.deps.Now(),
	})

	s.mu.Lock()
	s.submitted = true
	s.mu.Unlock()
	s.deps.View.Navigate(redirect)
	s.record(ctx, sub)

	return &Outcome{
		SubmissionID: sub.ID,
		RedirectPath: redirect,
		Contact:      contact,
		Company:      company,
		Stage:        sub.Stage,
		Event:        event,
	}, nil
}

// addAttribution appends the visitor's attribution as hidden inputs,
// without overriding inputs the form already carries.
func addAttribution(p *webhook.Payload, snap tracking.Snapshot) {
	fields := snap.Fields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, ok := fields[k].(string)
		if _, taken := p.Get(k); ok && !taken {
			p.Add(k, v)
		}
	}
}

// failSubmit renders a webhook failure and applies the failure policy.
func (s *Session) failSubmit(step int, err error) error {
	msg := err.Error()
	if errors.Is(err, webhook.ErrRejected) {
		msg = MsgSubmitFailed
	}
	s.deps.View.AppendStepError(step, msg)
	zap.L().Warn("wizard: submission failed",
		zap.String("session", s.id),
		zap.String("form", s.form.ID),
		zap.Stringer("policy", s.deps.Policy),
		zap.Error(err),
	)

	s.mu.Lock()
	s.submitDisabled = s.deps.Policy.afterFailure(s.deps.View)
	s.mu.Unlock()
	return eris.Wrapf(ErrWebhookFailed, "%s", msg)
}

// persistContact writes the contact and submission marker cookies.
func (s *Session) persistContact(jar cookies.Jar, contact model.UserContactInfo) {
	if err := cookies.UserContactInfo.Set(jar, contact); err != nil {
		zap.L().Warn("wizard: contact cookie not written", zap.Error(err))
	}
	if err := cookies.FormSubmitted.Set(jar, "1"); err != nil {
		zap.L().Warn("wizard: submitted marker not written", zap.Error(err))
	}
	if s.form.Kind == model.FormTalent {
		if err := cookies.TalentFormSubmitted.Set(jar, "1"); err != nil {
			zap.L().Warn("wizard: talent marker not written", zap.Error(err))
		}
	}
	if _, err := cookies.IncrementSubmissions(jar); err != nil {
		zap.L().Warn("wizard: submission counter not written", zap.Error(err))
	}
}

// enrich resolves the company, caches it in the jar, and fills the company
// inputs. Failures degrade to no profile.
func (s *Session) enrich(ctx context.Context, jar cookies.Jar, email string, fields *formFields) *model.CompanyProfile {
	if s.deps.Resolver == nil {
		return nil
	}
	company, err := s.deps.Resolver.Resolve(ctx, email)
	if err != nil {
		lvl := zap.WarnLevel
		if errors.Is(err, enrich.ErrNoCompanyData) {
			lvl = zap.InfoLevel
		}
		zap.L().Log(lvl, "wizard: couldn't enrich",
			zap.String("email_domain", model.EmailDomain(email)), zap.Error(err))
		fields.set(FieldCompanySize, notEnriched)
		return nil
	}
	if company == nil {
		return nil
	}
	if err := cookies.CompanyInfo.Set(jar, *company); err != nil {
		zap.L().Warn("wizard: company cookie not written", zap.Error(err))
	}
	fields.set(FieldCompanySize, company.Size)
	fields.set(FieldCompanyLinkedIn, company.LinkedIn)
	fields.set(FieldCompanyFunding, model.FormatFunding(company.Funding))
	return company
}

// record mirrors sub to the submission log in the background, detached
// from the request so the redirect never waits on the sinks.
func (s *Session) record(ctx context.Context, sub model.Submission) {
	if s.deps.Log == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.recording.Add(1)
	go func() {
		defer s.recording.Done()
		if err := s.deps.Log.Record(ctx, sub); err != nil {
			zap.L().Warn("wizard: submission not recorded", zap.String("submission", sub.ID), zap.Error(err))
		}
	}()
}

// WaitRecorded blocks until every background submission record has finished.
func (s *Session) WaitRecorded() { s.recording.Wait() }

// formFields is the ordered serialisation of the form.
type formFields struct {
	names  []string
	values map[string]string
}

func (f *formFields) add(name, value string) {
	if _, ok := f.values[name]; !ok {
		f.names = append(f.names, name)
	}
	f.values[name] = value
}

func (f *formFields) set(name, value string) { f.add(name, value) }

func (f formFields) get(name string) string { return f.values[name] }

func (f formFields) payload() webhook.Payload {
	p := make(webhook.Payload, 0, len(f.names))
	for _, n := range f.names {
		p.Add(n, f.values[n])
	}
	return p
}

// payloadFields serialises the form in step order, leaving out UI-only
// inputs: checkbox groups other than legal ones, the free-text other input
// of checkbox groups (its text is already in the hidden aggregate), and
// transient helpers. Tel inputs are replaced by their canonical number.
// Callers hold s.mu.
func (s *Session) payloadFields() formFields {
	out := formFields{values: make(map[string]string)}
	for _, st := range s.form.Steps {
		for _, f := range st.Inputs {
			if f.Transient || f.Name == st.Hidden || isCheckboxOther(st, f.Name) {
				continue
			}
			v := s.values[f.Name]
			if f.Type == model.FieldTel && v != "" && s.deps.Phone != nil {
				if canon, err := s.deps.Phone.Canonical(v); err == nil {
					v = canon
				}
			}
			out.add(f.Name, v)
		}
		if g := st.Choices; g != nil {
			if g.Kind == model.ChoiceRadio || g.Legal {
				for _, o := range g.Options {
					if s.checked[g.Name][o.Value] {
						out.add(g.Name, o.Value)
					}
				}
			}
			if g.OtherField != "" && st.HasOtherOption != model.ChoiceCheckbox {
				out.add(g.OtherField, s.values[g.OtherField])
			}
		}
		if st.Hidden != "" {
			out.add(st.Hidden, s.values[st.Hidden])
		}
	}
	return out
}

// isCheckboxOther reports whether name is the free-text other input of a
// checkbox group with an other option.
func isCheckboxOther(st model.Step, name string) bool {
	return st.HasOtherOption == model.ChoiceCheckbox && st.Choices != nil &&
		st.Choices.OtherField != "" && st.Choices.OtherField == name
}

// privateFieldMarkers name inputs kept out of the attribution object; the
// contact is reported separately.
var privateFieldMarkers = []string{"first-name", "last-name", "email", FieldFormType}

// attributionFields returns the non-blank, non-contact fields.
func attributionFields(f formFields) map[string]string {
	out := make(map[string]string)
	for _, n := range f.names {
		v := f.values[n]
		if v == "" || containsAny(n, privateFieldMarkers) {
			continue
		}
		out[n] = v
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// eventParams merges company, contact, and form data into snake_case
// analytics properties. Later sources win on key collisions.
func eventParams(company *model.CompanyProfile, contact model.UserContactInfo, formObj map[string]string, redirect string, kind model.FormKind) map[string]any {
	merged := company.Fields()
	merged["firstName"] = contact.FirstName
	merged["lastName"] = contact.LastName
	merged["email"] = contact.Email
	for k, v := range formObj {
		merged[k] = v
	}
	merged["redirectPath"] = redirect
	merged["product"] = string(kind)
	return tracking.SnakeKeys(merged)
}

package wizard

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/sells-group/leadform/internal/model"
)

// Validation messages shown in a step's error region.
const (
	MsgRequired      = "This field is required."
	MsgEmailEmpty    = "Please enter your email."
	MsgEmailInvalid  = "Please enter a valid email address."
	MsgNumberEmpty   = "Please enter the value in number"
	MsgNumberInvalid = "Please enter a valid integer value."
	MsgPhoneEmpty    = "Please enter your phone number."
	MsgPhoneInvalid  = "Please enter a valid phone number."
	MsgURLInvalid    = "Please enter a valid URL."
	MsgUploading     = "Please wait for the file upload to finish."
)

const maxNumberLen = 25

var (
	emailPattern  = regexp.MustCompile(`^(([^<>()[\]\\.,;:\s@"]+(\.[^<>()[\]\\.,;:\s@"]+)*)|(".+"))@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\])|(([a-zA-Z\-0-9]+\.)+[a-zA-Z]{2,}))$`)
	numberPattern = regexp.MustCompile(`^[0-9+\-s()]*$`)
)

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.ToLower(s))
}

// ValidNumber accepts digits with common separators, up to 24 characters.
func ValidNumber(s string) bool {
	return len(s) < maxNumberLen && numberPattern.MatchString(s)
}

// ValidURL reports whether s parses as an absolute URL.
func ValidURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && (u.Host != "" || u.Opaque != "")
}

// ValidationError describes why a step failed validation.
type ValidationError struct {
	Step    int
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("wizard: step %d invalid: %s", e.Step, e.Message)
	}
	return fmt.Sprintf("wizard: step %d field %s invalid: %s", e.Step, e.Field, e.Message)
}

// Is lets errors.Is match ErrStepInvalid.
func (e *ValidationError) Is(target error) bool {
	return target == ErrStepInvalid
}

// Verify validates the current step, updating the view's error state.
func (s *Session) Verify() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verify(s.current) == nil
}

// verify checks step i and renders the outcome. Callers hold s.mu.
func (s *Session) verify(i int) error {
	verr := s.check(i)
	view := s.deps.View
	if verr == nil {
		view.HideError(i)
		return nil
	}
	if verr.Field != "" {
		view.MarkInvalid(verr.Field)
		view.Focus(verr.Field)
	}
	view.ShowError(i, verr.Message)
	return verr
}

// requiredTypes are the input types the required check applies to.
var requiredTypes = map[model.FieldType]bool{
	model.FieldText:     true,
	model.FieldNumber:   true,
	model.FieldEmail:    true,
	model.FieldTel:      true,
	model.FieldTextarea: true,
	model.FieldFile:     true,
}

// check evaluates step i and returns the first failure. A step flagged
// skip always passes; any other step with neither choices nor required
// inputs fails.
func (s *Session) check(i int) *ValidationError {
	st := s.form.Steps[i]
	if st.Skip {
		return nil
	}
	fail := func(field, msg string) *ValidationError {
		return &ValidationError{Step: i, Field: field, Message: msg}
	}

	if s.uploading[i] {
		return fail("", MsgUploading)
	}

	if g := st.Choices; g != nil {
		picked := false
		for _, o := range g.Options {
			if !s.checked[g.Name][o.Value] {
				continue
			}
			picked = true
			if o.Other && strings.TrimSpace(s.values[g.OtherField]) == "" {
				return fail(g.OtherField, MsgRequired)
			}
		}
		if !picked {
			return fail("", MsgRequired)
		}
	}

	var required []model.Field
	for _, f := range st.Inputs {
		if f.Required && requiredTypes[f.Type] {
			required = append(required, f)
		}
	}
	if st.Choices == nil && len(required) == 0 {
		return fail("", MsgRequired)
	}
	for _, f := range required {
		if err := s.checkField(i, f); err != nil {
			return err
		}
	}

	// With both choices and required inputs, the leading option and the
	// leading input are mandatory on their own.
	if g := st.Choices; g != nil && len(required) > 0 {
		if !s.checked[g.Name][g.Options[0].Value] {
			return fail("", MsgRequired)
		}
		if s.values[required[0].Name] == "" {
			return fail(required[0].Name, MsgRequired)
		}
	}
	return nil
}

func (s *Session) checkField(step int, f model.Field) *ValidationError {
	v := s.values[f.Name]
	fail := func(msg string) *ValidationError {
		return &ValidationError{Step: step, Field: f.Name, Message: msg}
	}

	if v == "" {
		switch f.Type {
		case model.FieldEmail:
			return fail(MsgEmailEmpty)
		case model.FieldNumber:
			return fail(MsgNumberEmpty)
		case model.FieldTel:
			return fail(MsgPhoneEmpty)
		default:
			return fail(MsgRequired)
		}
	}

	switch {
	case f.Type == model.FieldEmail:
		if !ValidEmail(v) {
			return fail(MsgEmailInvalid)
		}
	case f.Type == model.FieldNumber:
		if !ValidNumber(v) {
			return fail(MsgNumberInvalid)
		}
	case f.Type == model.FieldTel:
		if s.deps.Phone != nil && !s.deps.Phone.Valid(v) {
			return fail(MsgPhoneInvalid)
		}
	case f.URL:
		if !ValidURL(v) {
			return fail(MsgURLInvalid)
		}
	}
	return nil
}

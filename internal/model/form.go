package model

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// FormKind is the product category a form belongs to.
type FormKind string

const (
	FormTalent        FormKind = "talent"
	FormHumanData     FormKind = "human-data"
	FormAIInterviewer FormKind = "ai-interviewer"
	FormGeneral       FormKind = "general"
)

// FieldType mirrors the HTML input types the wizard validates.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldEmail    FieldType = "email"
	FieldTel      FieldType = "tel"
	FieldTextarea FieldType = "textarea"
	FieldFile     FieldType = "file"
	FieldHidden   FieldType = "hidden"
)

// ChoiceKind distinguishes checkbox groups from radio groups.
type ChoiceKind string

const (
	ChoiceCheckbox ChoiceKind = "checkbox"
	ChoiceRadio    ChoiceKind = "radio"
)

// Form is a multi-step lead-capture form.
type Form struct {
	ID           string   `yaml:"id" json:"id"`
	Kind         FormKind `yaml:"kind" json:"kind"`
	RedirectPath string   `yaml:"redirect_path" json:"redirect_path"`
	Steps        []Step   `yaml:"steps" json:"steps"`
}

// Step is one page of a form.
type Step struct {
	Title string `yaml:"title" json:"title"`
	// Skip makes the step pass validation unconditionally.
	Skip bool `yaml:"skip" json:"skip,omitempty"`
	// HasOtherOption is "checkbox" or "radio" when a free-text "other" option exists.
	HasOtherOption ChoiceKind   `yaml:"has_other_option" json:"has_other_option,omitempty"`
	Inputs         []Field      `yaml:"inputs" json:"inputs,omitempty"`
	Choices        *ChoiceGroup `yaml:"choices" json:"choices,omitempty"`
	// Hidden names the input that receives the joined checkbox labels.
	Hidden string `yaml:"hidden" json:"hidden,omitempty"`
}

// Field is a single text-like input.
type Field struct {
	Name     string    `yaml:"name" json:"name"`
	Type     FieldType `yaml:"type" json:"type"`
	Required bool      `yaml:"required" json:"required,omitempty"`
	// URL marks a text input whose value must parse as an absolute URL.
	URL bool `yaml:"url" json:"url,omitempty"`
	// Transient inputs are UI helpers stripped before the payload is built.
	Transient bool `yaml:"transient" json:"transient,omitempty"`
}

// ChoiceGroup is a set of checkboxes or radios sharing a name.
type ChoiceGroup struct {
	Name string     `yaml:"name" json:"name"`
	Kind ChoiceKind `yaml:"kind" json:"kind"`
	// Legal checkbox groups (terms acceptance) survive payload stripping.
	Legal      bool     `yaml:"legal" json:"legal,omitempty"`
	Options    []Option `yaml:"options" json:"options"`
	OtherField string   `yaml:"other_field" json:"other_field,omitempty"`
}

// Option is one checkbox or radio.
type Option struct {
	Value string `yaml:"value" json:"value"`
	Label string `yaml:"label" json:"label"`
	// Other options require the group's free-text field when checked.
	Other bool `yaml:"other" json:"other,omitempty"`
}

// DisplayLabel returns the label, falling back to the value.
func (o Option) DisplayLabel() string {
	if o.Label != "" {
		return o.Label
	}
	return o.Value
}

// FirstNameField returns the conventional first-name input name for the form.
func (f Form) FirstNameField() string { return string(f.Kind) + "-first-name" }

// LastNameField returns the conventional last-name input name for the form.
func (f Form) LastNameField() string { return string(f.Kind) + "-last-name" }

// EmailField returns the conventional email input name for the form.
func (f Form) EmailField() string { return string(f.Kind) + "-email" }

// Validate checks the structural rules a form definition must satisfy.
func (f Form) Validate() error {
	if f.ID == "" {
		return eris.New("form: id is required")
	}
	switch f.Kind {
	case FormTalent, FormHumanData, FormAIInterviewer, FormGeneral:
	default:
		return eris.Errorf("form %s: unknown kind %q", f.ID, f.Kind)
	}
	if len(f.Steps) == 0 {
		return eris.Errorf("form %s: at least one step is required", f.ID)
	}
	seen := make(map[string]bool)
	for i, s := range f.Steps {
		for _, in := range s.Inputs {
			if in.Name == "" {
				return eris.Errorf("form %s: step %d has an unnamed input", f.ID, i)
			}
			if seen[in.Name] {
				return eris.Errorf("form %s: duplicate field %q", f.ID, in.Name)
			}
			seen[in.Name] = true
		}
		if s.Choices != nil {
			if s.Choices.Name == "" || len(s.Choices.Options) == 0 {
				return eris.Errorf("form %s: step %d has an empty choice group", f.ID, i)
			}
			for _, o := range s.Choices.Options {
				if o.Other && s.Choices.OtherField == "" {
					return eris.Errorf("form %s: step %d has an other option without other_field", f.ID, i)
				}
			}
		}
	}
	return nil
}

// LoadForms reads form definitions from a YAML file with a top-level "forms" key.
func LoadForms(path string) (map[string]Form, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "forms: read %s", path)
	}
	return ParseForms(data)
}

// ParseForms decodes form definitions and validates each one.
func ParseForms(data []byte) (map[string]Form, error) {
	var wrapper struct {
		Forms []Form `yaml:"forms"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "forms: parse")
	}

	forms := make(map[string]Form, len(wrapper.Forms))
	for _, f := range wrapper.Forms {
		if err := f.Validate(); err != nil {
			return nil, err
		}
		if _, dup := forms[f.ID]; dup {
			return nil, eris.Errorf("forms: duplicate form id %q", f.ID)
		}
		forms[f.ID] = f
	}
	return forms, nil
}

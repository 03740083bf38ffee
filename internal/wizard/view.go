package wizard

import (
	"strconv"

	"github.com/example/mpox-check/internal/form"
	"github.com/example/mpox-check/internal/imageprocessor"
	"github.com/example/mpox-check/internal/result"
)

// Field kinds understood by the presentation layer.
const (
	KindText        = "text"
	KindNumber      = "number"
	KindMultiSelect = "multiselect"
	KindFile        = "file"
)

// Field describes one input to render.
type Field struct {
	Name      string   `json:"name"`
	Label     string   `json:"label"`
	Kind      string   `json:"kind"`
	Value     string   `json:"value,omitempty"`
	Values    []string `json:"values,omitempty"`
	Options   []string `json:"options,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
	Min       int      `json:"min,omitempty"`
	Max       int      `json:"max,omitempty"`
	Help      string   `json:"help,omitempty"`
	Section   string   `json:"section,omitempty"`
}

// View is everything needed to render the current page.
type View struct {
	SessionID string            `json:"session_id"`
	Page      Page              `json:"page"`
	Title     string            `json:"title"`
	Body      []string          `json:"body,omitempty"`
	Fields    []Field           `json:"fields,omitempty"`
	Errors    []form.FieldError `json:"errors,omitempty"`
	Action    string            `json:"action,omitempty"`
	Note      string            `json:"note,omitempty"`
	Result    *result.View      `json:"result,omitempty"`
}

// View renders the current page. Validation messages appear only after a
// submit has been attempted on that page.
func (s *Session) View() View {
	v := View{SessionID: s.ID, Page: s.CurrentPage}
	switch s.CurrentPage {
	case PageHome:
		v.Title = "Mpox Identification App"
		v.Body = []string{
			"Mpox, also known as monkeypox, is a viral illness with global outbreaks. " +
				"Our app helps you quickly identify symptoms, keeping you informed and secure. " +
				"Your well-being is our top priority.",
		}
		v.Action = "Start"
		v.Note = "This app is part of a school project and is intended for educational purposes only."
	case PagePersonalInfo:
		v.Title = "Personal Information"
		v.Fields = s.personalFields()
		v.Action = "Next"
		if s.Attempted[PagePersonalInfo] {
			v.Errors = form.ValidatePersonalInfo(s.personalDraft).Errors
		}
	case PageSymptoms:
		v.Title = "Mpox Identification"
		v.Fields = s.symptomFields()
		v.Action = "Submit"
		if s.Attempted[PageSymptoms] {
			v.Errors = form.ValidateSymptoms(s.symptomDraft).
				Merge(form.ValidateImagePresent(s.pendingImage != nil)).Errors
		}
	case PageResult:
		v.Title = "Mpox Identification Results"
		if s.Prediction != nil {
			sel := s.Selection()
			// Labels come from the classifier, which only emits known ones.
			v.Result, _ = result.FromPrediction(*s.Prediction, sel.GeneralStrings(), sel.SkinStrings())
		}
	}
	return v
}

func (s *Session) personalFields() []Field {
	d := s.personalDraft
	age := ""
	if d.Age != 0 {
		age = strconv.Itoa(d.Age)
	}
	return []Field{
		{Name: form.FieldName, Label: "Enter your first name:", Kind: KindText, Value: d.Name, MaxLength: form.MaxNameLength},
		{
			Name:      form.FieldPhone,
			Label:     "Enter your phone number (e.g., +91-XXXXX-XXXXX):",
			Kind:      KindText,
			Value:     d.Phone,
			MaxLength: form.PhoneLength,
			Help:      "Only Indian numbers are allowed.",
		},
		{Name: form.FieldPlace, Label: "Enter your place:", Kind: KindText, Value: d.Place, MaxLength: form.MaxPlaceLength},
		{Name: form.FieldAge, Label: "Enter your age:", Kind: KindNumber, Value: age, Min: 0, Max: form.MaxAge},
	}
}

func (s *Session) symptomFields() []Field {
	general := make([]string, len(form.GeneralSymptoms))
	for i, g := range form.GeneralSymptoms {
		general[i] = string(g)
	}
	skin := make([]string, len(form.SkinSymptoms))
	for i, sk := range form.SkinSymptoms {
		skin[i] = string(sk)
	}

	image := Field{
		Name:    form.FieldImage,
		Label:   "Upload an image of the symptom...",
		Kind:    KindFile,
		Options: append([]string(nil), imageprocessor.AllowedExtensions...),
		Section: "Upload an Image",
	}
	if s.pendingImage != nil {
		image.Value = s.pendingImage.Filename()
	}

	return []Field{
		{
			Name:    form.FieldGeneral,
			Label:   "Select General Symptoms",
			Kind:    KindMultiSelect,
			Values:  s.symptomDraft.GeneralStrings(),
			Options: general,
			Section: "General Symptoms",
		},
		{
			Name:    form.FieldSkin,
			Label:   "Select Skin Symptoms",
			Kind:    KindMultiSelect,
			Values:  s.symptomDraft.SkinStrings(),
			Options: skin,
			Section: "Skin Symptoms",
		},
		image,
	}
}

// Package result turns a prediction and the reported symptoms into the
// verdict shown on the last wizard page.
package result

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/mpox-check/internal/classifier"
)

// ErrUnknownLabel indicates a label with no verdict template.
var ErrUnknownLabel = errors.New("unknown prediction label")

// Tone hints how the verdict should be styled.
type Tone string

const (
	ToneAlert Tone = "alert"
	ToneClear Tone = "clear"
)

// View is the structured verdict.
type View struct {
	Label           classifier.Label `json:"label"`
	Headline        string           `json:"headline"`
	Tone            Tone             `json:"tone"`
	GeneralSymptoms []string         `json:"general_symptoms"`
	SkinSymptoms    []string         `json:"skin_symptoms"`
	Assessment      string           `json:"assessment"`
	NextSteps       string           `json:"next_steps"`
	Probabilities   []float32        `json:"probabilities,omitempty"`
}

type template struct {
	headline   string
	tone       Tone
	assessment string
	nextSteps  string
}

var templates = map[classifier.Label]template{
	classifier.LabelMpox: {
		headline: "Mpox Detected",
		tone:     ToneAlert,
		assessment: "Based on the symptoms you reported and the analysis of the uploaded image, " +
			"there is a strong indication that you might be affected by Mpox.",
		nextSteps: "We highly recommend consulting a healthcare professional immediately for further " +
			"diagnosis and treatment. Your health and safety are our top priorities.",
	},
	classifier.LabelNormal: {
		headline: "No Mpox Detected",
		tone:     ToneClear,
		assessment: "Based on the symptoms you reported and the analysis of the uploaded image, " +
			"there is no indication of Mpox at this time.",
		nextSteps: "While Mpox has been ruled out, we advise you to consult a doctor to address the " +
			"symptoms you've been experiencing. Staying informed and seeking professional guidance is " +
			"key to your well-being.",
	},
}

// Render selects the verdict template for label and echoes the symptoms in
// the order they were selected.
func Render(label classifier.Label, general, skin []string) (*View, error) {
	tmpl, ok := templates[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	return &View{
		Label:           label,
		Headline:        tmpl.headline,
		Tone:            tmpl.tone,
		GeneralSymptoms: append([]string{}, general...),
		SkinSymptoms:    append([]string{}, skin...),
		Assessment:      tmpl.assessment,
		NextSteps:       tmpl.nextSteps,
	}, nil
}

// FromPrediction renders the verdict for p and attaches its probabilities.
func FromPrediction(p classifier.Prediction, general, skin []string) (*View, error) {
	v, err := Render(p.Label, general, skin)
	if err != nil {
		return nil, err
	}
	return v.WithProbabilities(p.Probabilities), nil
}

// WithProbabilities attaches a copy of the raw class probabilities.
func (v *View) WithProbabilities(probs []float32) *View {
	v.Probabilities = append([]float32(nil), probs...)
	return v
}

// Text is the plain-text form of the verdict.
func (v *View) Text() string {
	var b strings.Builder
	b.WriteString(v.Headline)
	b.WriteString("\n\nSymptoms Reported:\n")
	fmt.Fprintf(&b, "  General: %s\n", strings.Join(v.GeneralSymptoms, ", "))
	fmt.Fprintf(&b, "  Skin: %s\n\n", strings.Join(v.SkinSymptoms, ", "))
	b.WriteString(v.Assessment)
	b.WriteString("\n\nNext Steps:\n")
	b.WriteString(v.NextSteps)
	b.WriteString("\n")
	return b.String()
}

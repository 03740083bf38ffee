package wizard

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/mpox-check/internal/classifier"
	"github.com/example/mpox-check/internal/form"
	"github.com/example/mpox-check/internal/imageprocessor"
)

// ErrPredictionRecorded indicates a second prediction for the same session.
var ErrPredictionRecorded = errors.New("prediction already recorded")

// Session is one user's pass through the wizard. Collected fields only change
// when a submission validates; failed submissions are kept as drafts so the
// page can be re-rendered with the user's input and its errors.
type Session struct {
	ID          string
	CurrentPage Page

	PersonalInfo    form.PersonalInfo
	GeneralSymptoms []form.GeneralSymptom
	SkinSymptoms    []form.SkinSymptom
	Image           *imageprocessor.Upload
	Prediction      *classifier.Prediction

	// Attempted records, per page, whether a submit has been tried and
	// validation messages should therefore be shown.
	Attempted map[Page]bool

	personalDraft form.PersonalInfo
	symptomDraft  form.SymptomSelection
	pendingImage  *imageprocessor.Upload

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSession returns a session on the home page with nothing collected.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:          id,
		CurrentPage: PageHome,
		Attempted:   make(map[Page]bool),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Start leaves the home page.
func (s *Session) Start(now time.Time) error {
	return s.fire(EventStart, now)
}

// SubmitPersonalInfo validates in and advances to the symptoms page when every
// field passes. A failed validation is not an error: the result carries the
// messages and the session stays on the page.
func (s *Session) SubmitPersonalInfo(in form.PersonalInfo, now time.Time) (form.Result, error) {
	if _, err := Next(s.CurrentPage, EventSubmitPersonalInfo); err != nil {
		return form.Result{}, err
	}

	in = in.Normalize()
	s.Attempted[PagePersonalInfo] = true
	s.personalDraft = in

	res := form.ValidatePersonalInfo(in)
	if !res.OK {
		s.UpdatedAt = now
		return res, nil
	}
	s.PersonalInfo = in
	return res, s.fire(EventSubmitPersonalInfo, now)
}

// SubmitSymptoms validates the selection and the image and advances to the
// result page when all pass. img may be nil to reuse an image uploaded with an
// earlier failed submission.
func (s *Session) SubmitSymptoms(sel form.SymptomSelection, img *imageprocessor.Upload, now time.Time) (form.Result, error) {
	if _, err := Next(s.CurrentPage, EventSubmitSymptoms); err != nil {
		return form.Result{}, err
	}

	if img == nil {
		img = s.pendingImage
	}
	s.Attempted[PageSymptoms] = true
	s.symptomDraft = sel.Clone()
	s.pendingImage = img

	res := form.ValidateSymptoms(sel).Merge(form.ValidateImagePresent(img != nil))
	if !res.OK {
		s.UpdatedAt = now
		return res, nil
	}

	kept := sel.Clone()
	s.GeneralSymptoms = kept.General
	s.SkinSymptoms = kept.Skin
	s.Image = img
	s.pendingImage = nil
	return res, s.fire(EventSubmitSymptoms, now)
}

// ReplaceImage swaps the committed image on the result page. It is only
// allowed while no prediction exists, so a verdict is never recomputed.
func (s *Session) ReplaceImage(img *imageprocessor.Upload, now time.Time) error {
	if _, err := Next(s.CurrentPage, EventReplaceImage); err != nil {
		return err
	}
	if s.Prediction != nil {
		return ErrPredictionRecorded
	}
	if img == nil {
		return errors.New("replacement image required")
	}
	s.Image = img
	return s.fire(EventReplaceImage, now)
}

// RecordPrediction stores the classification outcome. It is set once per
// session and only on the result page.
func (s *Session) RecordPrediction(p classifier.Prediction, now time.Time) error {
	if s.CurrentPage != PageResult {
		return fmt.Errorf("%w: prediction on %s", ErrIllegalTransition, s.CurrentPage)
	}
	if s.Prediction != nil {
		return ErrPredictionRecorded
	}
	p.Probabilities = append([]float32(nil), p.Probabilities...)
	s.Prediction = &p
	s.UpdatedAt = now
	return nil
}

// Restart discards everything collected and returns to the home page. The
// session keeps its ID.
func (s *Session) Restart(now time.Time) error {
	if err := s.fire(EventRestart, now); err != nil {
		return err
	}
	fresh := NewSession(s.ID, s.CreatedAt)
	fresh.UpdatedAt = now
	*s = *fresh
	return nil
}

// Selection returns the committed symptom selection.
func (s *Session) Selection() form.SymptomSelection {
	return form.SymptomSelection{General: s.GeneralSymptoms, Skin: s.SkinSymptoms}.Clone()
}

func (s *Session) fire(ev Event, now time.Time) error {
	to, err := Next(s.CurrentPage, ev)
	if err != nil {
		return err
	}
	s.CurrentPage = to
	s.UpdatedAt = now
	return nil
}

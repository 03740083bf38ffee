package wizard

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/example/mpox-check/internal/classifier"
	"github.com/example/mpox-check/internal/form"
	"github.com/example/mpox-check/internal/imageprocessor"
)

var now = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func testUpload(t *testing.T) *imageprocessor.Upload {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	up, err := imageprocessor.NewUpload("rash.png", buf.Bytes())
	if err != nil {
		t.Fatalf("new upload: %v", err)
	}
	return up
}

func validInfo() form.PersonalInfo {
	return form.PersonalInfo{Name: "Ravi", Phone: "9123456789", Place: "Chennai", Age: 41}
}

func validSelection() form.SymptomSelection {
	return form.ParseSymptoms([]string{"Fever", "Headache"}, []string{"Skin rash or lesions"})
}

func sessionOn(t *testing.T, page Page) *Session {
	t.Helper()
	s := NewSession("sess", now)
	if page == PageHome {
		return s
	}
	if err := s.Start(now); err != nil {
		t.Fatalf("start: %v", err)
	}
	if page == PagePersonalInfo {
		return s
	}
	if res, err := s.SubmitPersonalInfo(validInfo(), now); err != nil || !res.OK {
		t.Fatalf("personal info: %v %+v", err, res)
	}
	if page == PageSymptoms {
		return s
	}
	if res, err := s.SubmitSymptoms(validSelection(), testUpload(t), now); err != nil || !res.OK {
		t.Fatalf("symptoms: %v %+v", err, res)
	}
	return s
}

func TestTransitionTable(t *testing.T) {
	legal := []struct {
		from Page
		ev   Event
		to   Page
	}{
		{PageHome, EventStart, PagePersonalInfo},
		{PagePersonalInfo, EventSubmitPersonalInfo, PageSymptoms},
		{PageSymptoms, EventSubmitSymptoms, PageResult},
		{PageResult, EventRestart, PageHome},
		{PageSymptoms, EventRestart, PageHome},
	}
	for _, tc := range legal {
		to, err := Next(tc.from, tc.ev)
		if err != nil || to != tc.to {
			t.Fatalf("%s on %s: expected %s, got %s (%v)", tc.ev, tc.from, tc.to, to, err)
		}
	}

	illegal := []struct {
		from Page
		ev   Event
	}{
		{PageHome, EventSubmitPersonalInfo},
		{PageHome, EventSubmitSymptoms},
		{PagePersonalInfo, EventStart},
		{PagePersonalInfo, EventSubmitSymptoms},
		{PageSymptoms, EventSubmitPersonalInfo},
		{PageResult, EventStart},
		{PageResult, EventSubmitSymptoms},
	}
	for _, tc := range illegal {
		to, err := Next(tc.from, tc.ev)
		if !errors.Is(err, ErrIllegalTransition) || to != tc.from {
			t.Fatalf("%s on %s: expected illegal transition, got %s (%v)", tc.ev, tc.from, to, err)
		}
	}
}

func TestNewSessionStartsOnHome(t *testing.T) {
	s := NewSession("abc", now)
	if s.CurrentPage != PageHome || s.Prediction != nil || s.Image != nil {
		t.Fatalf("unexpected initial state: %+v", s)
	}
	v := s.View()
	if v.Title != "Mpox Identification App" || v.Action != "Start" || len(v.Errors) != 0 {
		t.Fatalf("unexpected home view: %+v", v)
	}
	if !strings.Contains(v.Note, "educational purposes only") {
		t.Fatalf("unexpected note: %s", v.Note)
	}
}

func TestPersonalInfoGate(t *testing.T) {
	s := sessionOn(t, PagePersonalInfo)

	if v := s.View(); len(v.Errors) != 0 {
		t.Fatalf("errors must stay hidden before the first submit, got %+v", v.Errors)
	}

	fields := []func(*form.PersonalInfo){
		func(p *form.PersonalInfo) { p.Name = "" },
		func(p *form.PersonalInfo) { p.Phone = "1234567890" },
		func(p *form.PersonalInfo) { p.Place = "" },
		func(p *form.PersonalInfo) { p.Age = 0 },
	}
	for i, breakField := range fields {
		info := validInfo()
		breakField(&info)
		res, err := s.SubmitPersonalInfo(info, now)
		if err != nil {
			t.Fatalf("case %d: unexpected error: %v", i, err)
		}
		if res.OK || len(res.Errors) != 1 {
			t.Fatalf("case %d: expected exactly one field error, got %+v", i, res)
		}
		if s.CurrentPage != PagePersonalInfo {
			t.Fatalf("case %d: advanced with an invalid field", i)
		}
		if s.PersonalInfo != (form.PersonalInfo{}) {
			t.Fatalf("case %d: invalid input was committed: %+v", i, s.PersonalInfo)
		}
	}

	if !s.Attempted[PagePersonalInfo] {
		t.Fatal("expected attempted flag after failed submit")
	}
	v := s.View()
	if len(v.Errors) != 1 || v.Errors[0].Message != "Age is required." {
		t.Fatalf("expected the last failure to be shown, got %+v", v.Errors)
	}
	if v.Fields[0].Value != "Ravi" {
		t.Fatalf("expected draft values to be echoed, got %+v", v.Fields[0])
	}

	res, err := s.SubmitPersonalInfo(validInfo(), now)
	if err != nil || !res.OK {
		t.Fatalf("expected resubmission to pass: %v %+v", err, res)
	}
	if s.CurrentPage != PageSymptoms || s.PersonalInfo.Name != "Ravi" {
		t.Fatalf("unexpected state after success: %+v", s)
	}
	if s.Attempted[PageSymptoms] {
		t.Fatal("attempted flag must be per page")
	}
}

func TestSymptomsGate(t *testing.T) {
	cases := map[string]struct {
		sel form.SymptomSelection
		img bool
	}{
		"no general": {form.ParseSymptoms(nil, []string{"Swollen lymph nodes"}), true},
		"no skin":    {form.ParseSymptoms([]string{"Fever"}, nil), true},
		"no image":   {validSelection(), false},
		"nothing":    {form.SymptomSelection{}, false},
	}
	for name, tc := range cases {
		s := sessionOn(t, PageSymptoms)
		var img *imageprocessor.Upload
		if tc.img {
			img = testUpload(t)
		}
		res, err := s.SubmitSymptoms(tc.sel, img, now)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if res.OK || s.CurrentPage != PageSymptoms {
			t.Fatalf("%s: expected to stay on symptoms, got %s", name, s.CurrentPage)
		}
		if s.Image != nil || len(s.GeneralSymptoms) != 0 {
			t.Fatalf("%s: invalid submission committed data", name)
		}
		if len(s.View().Errors) == 0 {
			t.Fatalf("%s: expected visible errors", name)
		}
	}
}

func TestSymptomsReusesPendingImage(t *testing.T) {
	s := sessionOn(t, PageSymptoms)
	up := testUpload(t)

	res, _ := s.SubmitSymptoms(form.ParseSymptoms(nil, nil), up, now)
	if res.OK {
		t.Fatal("expected failure")
	}
	v := s.View()
	for _, e := range v.Errors {
		if e.Field == form.FieldImage {
			t.Fatalf("image error shown although an image was uploaded: %+v", v.Errors)
		}
	}
	if v.Fields[2].Value != "rash.png" {
		t.Fatalf("expected pending image to be shown, got %+v", v.Fields[2])
	}

	res, err := s.SubmitSymptoms(validSelection(), nil, now)
	if err != nil || !res.OK {
		t.Fatalf("expected success with pending image: %v %+v", err, res)
	}
	if s.Image != up || s.CurrentPage != PageResult {
		t.Fatalf("unexpected state: page=%s image=%v", s.CurrentPage, s.Image)
	}
	if got := strings.Join(s.Selection().GeneralStrings(), ","); got != "Fever,Headache" {
		t.Fatalf("unexpected committed general symptoms: %s", got)
	}
}

func TestSubmitOnWrongPageIsIllegal(t *testing.T) {
	s := NewSession("sess", now)
	if _, err := s.SubmitPersonalInfo(validInfo(), now); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	if _, err := s.SubmitSymptoms(validSelection(), testUpload(t), now); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	if s.CurrentPage != PageHome || len(s.Attempted) != 0 {
		t.Fatalf("illegal events must not change state: %+v", s)
	}

	s = sessionOn(t, PageResult)
	if err := s.Start(now); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected result page to be terminal, got %v", err)
	}
}

func TestRecordPredictionOnce(t *testing.T) {
	s := sessionOn(t, PageSymptoms)
	p, _ := classifier.NewPrediction([]float32{0.9, 0.1})
	if err := s.RecordPrediction(p, now); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected prediction before result page to fail, got %v", err)
	}

	s = sessionOn(t, PageResult)
	if v := s.View(); v.Result != nil {
		t.Fatal("expected no verdict before prediction")
	}
	if err := s.RecordPrediction(p, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.RecordPrediction(p, now); !errors.Is(err, ErrPredictionRecorded) {
		t.Fatalf("expected ErrPredictionRecorded, got %v", err)
	}

	v := s.View()
	if v.Result == nil || v.Result.Headline != "Mpox Detected" {
		t.Fatalf("unexpected result view: %+v", v.Result)
	}
	if strings.Join(v.Result.GeneralSymptoms, ",") != "Fever,Headache" {
		t.Fatalf("unexpected symptom echo: %v", v.Result.GeneralSymptoms)
	}
}

func TestRestartResetsEverything(t *testing.T) {
	s := sessionOn(t, PageResult)
	p, _ := classifier.NewPrediction([]float32{0.1, 0.9})
	_ = s.RecordPrediction(p, now)

	later := now.Add(time.Minute)
	if err := s.Restart(later); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID != "sess" || s.CurrentPage != PageHome || s.Prediction != nil || s.Image != nil {
		t.Fatalf("unexpected state after restart: %+v", s)
	}
	if s.PersonalInfo != (form.PersonalInfo{}) || len(s.Attempted) != 0 {
		t.Fatalf("collected data survived restart: %+v", s)
	}
	if !s.CreatedAt.Equal(now) || !s.UpdatedAt.Equal(later) {
		t.Fatalf("unexpected timestamps: %s %s", s.CreatedAt, s.UpdatedAt)
	}
}

func TestViewJSONUsesPageSlugs(t *testing.T) {
	s := sessionOn(t, PageSymptoms)
	data, err := json.Marshal(s.View())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Contains(data, []byte(`"page":"symptoms"`)) {
		t.Fatalf("unexpected json: %s", data)
	}

	var p Page
	if err := p.UnmarshalText([]byte("personal_info")); err != nil || p != PagePersonalInfo {
		t.Fatalf("unexpected page: %v %v", p, err)
	}
	if err := p.UnmarshalText([]byte("checkout")); err == nil {
		t.Fatal("expected unknown slug to fail")
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	a := sessionOn(t, PageResult)
	b := NewSession("other", now)

	if b.Image != nil || b.PersonalInfo != (form.PersonalInfo{}) {
		t.Fatal("new session observed another session's data")
	}
	a.Attempted[PageHome] = true
	if b.Attempted[PageHome] {
		t.Fatal("sessions share attempted flags")
	}
}

func TestReplaceImageOnlyBeforePrediction(t *testing.T) {
	s := sessionOn(t, PageSymptoms)
	if err := s.ReplaceImage(testUpload(t), now); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected illegal transition off the result page, got %v", err)
	}

	s = sessionOn(t, PageResult)
	replacement := testUpload(t)
	if err := s.ReplaceImage(nil, now); err == nil {
		t.Fatal("expected nil replacement to fail")
	}
	if err := s.ReplaceImage(replacement, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Image != replacement || s.CurrentPage != PageResult {
		t.Fatalf("unexpected state: %+v", s)
	}

	p, _ := classifier.NewPrediction([]float32{0.2, 0.8})
	_ = s.RecordPrediction(p, now)
	if err := s.ReplaceImage(testUpload(t), now); !errors.Is(err, ErrPredictionRecorded) {
		t.Fatalf("expected ErrPredictionRecorded, got %v", err)
	}
}

package form

// GeneralSymptom is one of the fixed general symptom choices.
type GeneralSymptom string

// SkinSymptom is one of the fixed skin symptom choices.
type SkinSymptom string

const (
	Fever       GeneralSymptom = "Fever"
	SoreThroat  GeneralSymptom = "Sore throat"
	Headache    GeneralSymptom = "Headache"
	MuscleAches GeneralSymptom = "Muscle aches"
	BackPain    GeneralSymptom = "Back pain"
	LowEnergy   GeneralSymptom = "Low energy"

	SkinRash          SkinSymptom = "Skin rash or lesions"
	SwollenLymphNodes SkinSymptom = "Swollen lymph nodes"
)

// GeneralSymptoms lists the general symptoms in display order.
var GeneralSymptoms = []GeneralSymptom{Fever, SoreThroat, Headache, MuscleAches, BackPain, LowEnergy}

// SkinSymptoms lists the skin symptoms in display order.
var SkinSymptoms = []SkinSymptom{SkinRash, SwollenLymphNodes}

func (s GeneralSymptom) Valid() bool {
	for _, known := range GeneralSymptoms {
		if s == known {
			return true
		}
	}
	return false
}

func (s SkinSymptom) Valid() bool {
	for _, known := range SkinSymptoms {
		if s == known {
			return true
		}
	}
	return false
}

// SymptomSelection is what the user picked on the symptoms page. Order is the
// order of selection.
type SymptomSelection struct {
	General []GeneralSymptom `validate:"required,min=1,dive,general_symptom"`
	Skin    []SkinSymptom    `validate:"required,min=1,dive,skin_symptom"`
}

// ParseSymptoms builds a selection from raw form values, keeping the first
// occurrence of each value and dropping blanks. Unknown values are kept so
// validation can report them.
func ParseSymptoms(general, skin []string) SymptomSelection {
	return SymptomSelection{
		General: dedupe[GeneralSymptom](general),
		Skin:    dedupe[SkinSymptom](skin),
	}
}

// GeneralStrings returns the general symptoms as plain strings.
func (s SymptomSelection) GeneralStrings() []string {
	return toStrings(s.General)
}

// SkinStrings returns the skin symptoms as plain strings.
func (s SymptomSelection) SkinStrings() []string {
	return toStrings(s.Skin)
}

// Clone returns a copy that shares no backing arrays with s.
func (s SymptomSelection) Clone() SymptomSelection {
	return SymptomSelection{
		General: append([]GeneralSymptom(nil), s.General...),
		Skin:    append([]SkinSymptom(nil), s.Skin...),
	}
}

func dedupe[T ~string](values []string) []T {
	seen := make(map[string]struct{}, len(values))
	out := make([]T, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, T(v))
	}
	return out
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

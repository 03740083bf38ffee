// Package wizard is the linear page state machine that drives one session
// from the landing page to the verdict.
package wizard

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition indicates an event that is not allowed on the current page.
var ErrIllegalTransition = errors.New("illegal page transition")

// Page is one screen of the wizard.
type Page int

const (
	PageHome Page = iota
	PagePersonalInfo
	PageSymptoms
	PageResult
)

var pageSlugs = map[Page]string{
	PageHome:         "home",
	PagePersonalInfo: "personal_info",
	PageSymptoms:     "symptoms",
	PageResult:       "result",
}

func (p Page) String() string {
	if s, ok := pageSlugs[p]; ok {
		return s
	}
	return fmt.Sprintf("page(%d)", int(p))
}

func (p Page) MarshalText() ([]byte, error) {
	if _, ok := pageSlugs[p]; !ok {
		return nil, fmt.Errorf("unknown page %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Page) UnmarshalText(text []byte) error {
	for page, slug := range pageSlugs {
		if slug == string(text) {
			*p = page
			return nil
		}
	}
	return fmt.Errorf("unknown page %q", text)
}

// Event is a user action that may move the wizard to another page.
type Event int

const (
	EventStart Event = iota
	EventSubmitPersonalInfo
	EventSubmitSymptoms
	EventRestart
	EventReplaceImage
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventSubmitPersonalInfo:
		return "submit_personal_info"
	case EventSubmitSymptoms:
		return "submit_symptoms"
	case EventRestart:
		return "restart"
	case EventReplaceImage:
		return "replace_image"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

type transition struct {
	from  Page
	event Event
}

// transitions is the complete table; any pair not listed is illegal. The
// submit events are additionally guarded by validation in Session.
var transitions = map[transition]Page{
	{PageHome, EventStart}:                      PagePersonalInfo,
	{PagePersonalInfo, EventSubmitPersonalInfo}: PageSymptoms,
	{PageSymptoms, EventSubmitSymptoms}:         PageResult,
	{PageResult, EventReplaceImage}:             PageResult,

	{PageHome, EventRestart}:         PageHome,
	{PagePersonalInfo, EventRestart}: PageHome,
	{PageSymptoms, EventRestart}:     PageHome,
	{PageResult, EventRestart}:       PageHome,
}

// Next returns the page reached by firing ev on from.
func Next(from Page, ev Event) (Page, error) {
	to, ok := transitions[transition{from, ev}]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, ev, from)
	}
	return to, nil
}

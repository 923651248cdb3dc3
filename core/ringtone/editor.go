package ringtone

import (
	"errors"
	"fmt"

	"RingCut/model"
)

// ErrInvalidTransition is returned when an editor operation is not allowed in the current state.
var ErrInvalidTransition = errors.New("invalid editor transition")

// State of an Editor.
type State int

const (
	StateIdle State = iota
	StateLoaded
	StateEditing
	StateCreated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoaded:
		return "loaded"
	case StateEditing:
		return "editing"
	case StateCreated:
		return "created"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Editor walks one source through Idle -> Loaded -> Editing -> Created.
// It is not safe for concurrent use.
type Editor struct {
	validator *Validator
	state     State
	source    model.AudioAsset
	start     float64
	end       float64
	name      string
	created   model.AudioAsset
}

// NewEditor returns an idle editor that creates ringtones through v.
func NewEditor(v *Validator) *Editor {
	if v == nil {
		v = &Validator{}
	}
	return &Editor{validator: v}
}

// State returns the current state.
func (e *Editor) State() State {
	return e.state
}

// Load selects the source asset. Loading again discards any pending window.
func (e *Editor) Load(source model.AudioAsset) error {
	if source.Duration <= 0 {
		return fmt.Errorf("%w: source %q has no playable duration", ErrInvalidTransition, source.Name)
	}
	e.source = source
	e.start, e.end, e.name = 0, 0, ""
	e.state = StateLoaded
	return nil
}

// SetWindow records a candidate window. Allowed once a source is loaded.
func (e *Editor) SetWindow(start, end float64, name string) error {
	if e.state == StateIdle {
		return fmt.Errorf("%w: no source loaded", ErrInvalidTransition)
	}
	e.start, e.end, e.name = start, end, name
	e.state = StateEditing
	return nil
}

// CanCreate reports whether Create would succeed.
func (e *Editor) CanCreate() bool {
	return e.state == StateEditing && CanCreate(e.source.Duration, e.start, e.end)
}

// Create derives the ringtone. On failure the editor stays in its current state.
func (e *Editor) Create() (model.AudioAsset, error) {
	if e.state != StateEditing {
		return model.AudioAsset{}, fmt.Errorf("%w: create from %s", ErrInvalidTransition, e.state)
	}
	rt, err := e.validator.CreateRingtone(e.source, e.start, e.end, e.name)
	if err != nil {
		return model.AudioAsset{}, err
	}
	e.created = rt
	e.state = StateCreated
	return rt, nil
}

// Created returns the last ringtone produced by Create.
func (e *Editor) Created() (model.AudioAsset, bool) {
	return e.created, e.state == StateCreated
}

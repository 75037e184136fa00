package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSessionNotFound indicates a requested session could not be found.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoActiveSession indicates no session is active.
	ErrNoActiveSession = errors.New("no active session")
	// ErrNoURL indicates the active session has no page loaded.
	ErrNoURL = errors.New("no page loaded")
	// ErrNoModel indicates no usable model is selected.
	ErrNoModel = errors.New("no model selected")
	// ErrInvalidModel indicates an invalid model identifier.
	ErrInvalidModel = errors.New("invalid model")
	// ErrInvalidMode indicates an unknown answer-source mode.
	ErrInvalidMode = errors.New("invalid mode")
	// ErrBridgeUnavailable indicates the backend bridge never became reachable.
	ErrBridgeUnavailable = errors.New("bridge unavailable")
	// ErrBusy indicates a question is already in flight.
	ErrBusy = errors.New("question already in flight")
	// ErrEmptyPrompt indicates the submitted input was empty.
	ErrEmptyPrompt = errors.New("empty prompt")
	// ErrInvalidURL indicates a url could not be parsed.
	ErrInvalidURL = errors.New("invalid url")
	// ErrEmptyBaseURL indicates an empty backend endpoint was supplied.
	ErrEmptyBaseURL = errors.New("base url must not be empty")
	// ErrShortcutNotFound indicates a shortcut id is unknown.
	ErrShortcutNotFound = errors.New("shortcut not found")
	// ErrSurfaceNotFound indicates the rendering surface for a session is unknown.
	ErrSurfaceNotFound = errors.New("surface not found")
)

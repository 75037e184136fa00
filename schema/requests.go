package schema

// AskRequest dispatches a question about a page to an answer backend.
type AskRequest struct {
	RequestID RequestID
	SessionID SessionID
	URL       string
	Question  string
	// Model is the backend-native model name without provider prefix.
	Model string
}

// SaveShortcutRequest creates (ID == 0) or updates a shortcut.
type SaveShortcutRequest struct {
	ID        ShortcutID
	Title     string
	URL       string
	Color     string
	Icon      string
	SortOrder int
}

// SubmitResponse reports how the coordinator handled submitted input.
type SubmitResponse struct {
	RequestID  RequestID
	Dispatched bool
	// Prompt is the final text sent to the backend.
	Prompt string
	// Rejected holds the precondition message when nothing was dispatched.
	Rejected string
}

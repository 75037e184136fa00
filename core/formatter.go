package core

// Formatter renders accumulated answer text for display.
type Formatter interface {
	Format(text string) (string, error)
}

package schema

import (
	"net/url"
	"regexp"
	"strings"
)

// Model provider prefixes.
const (
	LocalModelPrefix  = "ollama:"
	RemoteModelPrefix = "openrouter:"
	// NoLocalModel is the sentinel selected when no local model is available.
	NoLocalModel ModelID = LocalModelPrefix + "none"
)

// DefaultSearchURL is used when address input is not URL-like.
const DefaultSearchURL = "https://www.google.com/search?q="

var schemeRE = regexp.MustCompile(`(?i)^https?://`)

// NormalizeMode validates a mode string. "remote" is accepted as an alias of "online".
func NormalizeMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(ModeLocal):
		return ModeLocal, nil
	case string(ModeRemote), "remote":
		return ModeRemote, nil
	default:
		return "", ErrInvalidMode
	}
}

// NormalizeModelID validates a provider-prefixed model identifier.
// A bare identifier is treated as a remote model.
func NormalizeModelID(model string) (ModelID, error) {
	trimmed := strings.TrimSpace(model)
	if trimmed == "" || strings.ContainsAny(trimmed, " \t\r\n") {
		return "", ErrInvalidModel
	}
	if strings.HasPrefix(trimmed, LocalModelPrefix) || strings.HasPrefix(trimmed, RemoteModelPrefix) {
		if _, name := SplitModelID(ModelID(trimmed)); name == "" {
			return "", ErrInvalidModel
		}
		return ModelID(trimmed), nil
	}
	return ModelID(RemoteModelPrefix + trimmed), nil
}

// SplitModelID returns the provider mode and the backend-native model name.
func SplitModelID(model ModelID) (Mode, string) {
	value := string(model)
	switch {
	case strings.HasPrefix(value, LocalModelPrefix):
		return ModeLocal, strings.TrimPrefix(value, LocalModelPrefix)
	case strings.HasPrefix(value, RemoteModelPrefix):
		return ModeRemote, strings.TrimPrefix(value, RemoteModelPrefix)
	default:
		return ModeRemote, value
	}
}

// LocalModelID prefixes a local model name.
func LocalModelID(name string) ModelID {
	return ModelID(LocalModelPrefix + name)
}

// RemoteModelID prefixes a remote model name.
func RemoteModelID(name string) ModelID {
	return ModelID(RemoteModelPrefix + name)
}

// NormalizeURL prefixes https:// when the value carries neither http:// nor https://.
func NormalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidURL
	}
	if !schemeRE.MatchString(trimmed) {
		trimmed = "https://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return "", ErrInvalidURL
	}
	return trimmed, nil
}

// LooksLikeURL reports whether address input should be loaded rather than searched.
func LooksLikeURL(input string) bool {
	trimmed := strings.TrimSpace(input)
	if schemeRE.MatchString(trimmed) {
		return true
	}
	return strings.Contains(trimmed, ".") && !strings.Contains(trimmed, " ")
}

// ResolveAddress turns address-bar input into a loadable url.
func ResolveAddress(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", ErrInvalidURL
	}
	if LooksLikeURL(trimmed) {
		return NormalizeURL(trimmed)
	}
	return DefaultSearchURL + url.QueryEscape(trimmed), nil
}

// HostOf returns the host component of a url, or the input when it cannot be parsed.
func HostOf(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}
	return parsed.Hostname()
}

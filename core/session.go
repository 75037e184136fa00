package core

import "pkt.systems/nexus/schema"

// session tracks one browsing context.
type session struct {
	ID      schema.SessionID
	Title   string
	URL     string
	Favicon string
}

// Snapshot returns a transport-friendly view of the session.
func (s *session) Snapshot(active bool) schema.SessionSnapshot {
	return schema.SessionSnapshot{
		ID:      s.ID,
		Title:   s.Title,
		URL:     s.URL,
		Favicon: s.Favicon,
		Active:  active,
	}
}

func titleFor(info schema.PageInfo, url string) string {
	if info.Title != "" {
		return info.Title
	}
	if host := schema.HostOf(url); host != "" {
		return host
	}
	return schema.DefaultSessionTitle
}

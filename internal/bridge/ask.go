package bridge

import (
	"context"
	"strings"

	"pkt.systems/nexus/internal/backend"
	"pkt.systems/nexus/internal/eventbus"
	"pkt.systems/nexus/internal/pagecache"
	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

const (
	historyMessages = 10
	previewChars    = 2000
	// minSurfaceText is the shortest rendered text preferred over a fetch.
	minSurfaceText = 200
	sourceSurface  = "webview_text"
)

// AskLocal answers req with the local model. It returns once the stream
// has ended.
func (b *Bridge) AskLocal(ctx context.Context, req schema.AskRequest) error {
	content, err := b.pageContent(ctx, schema.ModeLocal, req)
	if err != nil {
		return err
	}
	history, err := b.store.RecentHistory(ctx, req.URL, historyMessages)
	if err != nil {
		pslog.Ctx(ctx).Warn("bridge history load failed", "err", err)
	}
	messages := backend.LocalMessages(history, content, req.Question)
	answer, err := b.local.Chat(ctx, req.Model, messages, b.emitter(ctx, b.inbound.LocalStream, req.RequestID))
	if err != nil {
		return err
	}
	b.record(ctx, req, answer)
	return nil
}

// AskRemote answers req through the model router. It returns once the
// stream has ended.
func (b *Bridge) AskRemote(ctx context.Context, req schema.AskRequest) error {
	content, err := b.pageContent(ctx, schema.ModeRemote, req)
	if err != nil {
		return err
	}
	prompt := backend.RemoteQuestion(content, req.Question)
	answer, err := b.remote.Chat(ctx, req.Model, prompt, b.emitter(ctx, b.inbound.RemoteStream, req.RequestID), func(to string) {
		b.inbound.ModelFallback.Publish(schema.ModelFallback{To: to})
	})
	if err != nil {
		return err
	}
	b.record(ctx, req, answer)
	return nil
}

// pageContent resolves the text a question is answered from and reports
// where it came from.
func (b *Bridge) pageContent(ctx context.Context, mode schema.Mode, req schema.AskRequest) (string, error) {
	log := pslog.Ctx(ctx)
	page, fromCache := b.cache.Get(req.URL)
	if !fromCache {
		var err error
		page, err = b.fetchPage(ctx, req)
		if err != nil {
			return "", err
		}
		b.cache.Put(page)
	}
	content := backend.Truncate(page.Text, backend.MaxContentChars)
	preview := backend.Truncate(content, previewChars)
	log.Info("bridge page content",
		"mode", mode, "url", req.URL, "source", page.Source, "from_cache", fromCache, "length", len(page.Text))
	b.inbound.ContentSource.Publish(schema.ContentSource{
		Mode:      mode,
		URL:       req.URL,
		Source:    page.Source,
		FromCache: fromCache,
		Length:    len(page.Text),
		Preview:   preview,
	})
	return content, nil
}

func (b *Bridge) fetchPage(ctx context.Context, req schema.AskRequest) (pagecache.Page, error) {
	log := pslog.Ctx(ctx)
	if req.SessionID != "" {
		text, err := b.pageSurfaces.Text(ctx, req.SessionID)
		if err == nil && len(strings.TrimSpace(text)) >= minSurfaceText {
			return pagecache.Page{URL: req.URL, Text: text, Source: sourceSurface}, nil
		}
		if err != nil {
			log.Debug("bridge surface text failed", "err", err)
		}
	}
	text, source, err := b.fetcher.Text(ctx, req.URL)
	if err != nil {
		return pagecache.Page{}, err
	}
	return pagecache.Page{URL: req.URL, Text: text, Source: source}, nil
}

// emitter publishes backend chunks stamped with the request they answer.
func (b *Bridge) emitter(ctx context.Context, topic *eventbus.Topic[schema.StreamChunk], id schema.RequestID) backend.Emit {
	log := pslog.Ctx(ctx)
	return func(chunk schema.StreamChunk) {
		chunk.RequestID = id
		if err := topic.PublishWait(ctx, chunk); err != nil {
			log.Debug("bridge stream publish failed", "topic", topic.Name(), "err", err)
		}
	}
}

func (b *Bridge) record(ctx context.Context, req schema.AskRequest, answer string) {
	log := pslog.Ctx(ctx)
	id, err := b.store.UpsertSession(ctx, req.URL)
	if err != nil {
		log.Warn("bridge chat session failed", "err", err)
		return
	}
	if err := b.store.AddMessage(ctx, id, schema.RoleUser, req.Question); err != nil {
		log.Warn("bridge chat message failed", "role", schema.RoleUser, "err", err)
	}
	if err := b.store.AddMessage(ctx, id, schema.RoleAssistant, answer); err != nil {
		log.Warn("bridge chat message failed", "role", schema.RoleAssistant, "err", err)
	}
}

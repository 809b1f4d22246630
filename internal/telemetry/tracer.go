// Package telemetry wires the reactor's Tracer hook points to structured
// logging, Prometheus metrics, and the diagnostics activity feed, so
// internal/reactor itself never imports any of those concerns directly.
package telemetry

import (
	"log/slog"

	"github.com/roel-gerrits/nervix/internal/diag"
	"github.com/roel-gerrits/nervix/internal/metrics"
	"github.com/roel-gerrits/nervix/internal/reactor"
)

// Tracer implements reactor.Tracer on top of a *slog.Logger, a *metrics.Metrics
// bundle, and an *diag.ActivityFeed.
type Tracer struct {
	log  *slog.Logger
	m    *metrics.Metrics
	feed *diag.ActivityFeed
}

// New builds a Tracer. Any of the collaborators may be nil; log defaults
// to slog.Default(), and a nil m or feed simply skips that side effect.
func New(log *slog.Logger, m *metrics.Metrics, feed *diag.ActivityFeed) *Tracer {
	if log == nil {
		log = slog.Default()
	}
	return &Tracer{log: log, m: m, feed: feed}
}

var _ reactor.Tracer = (*Tracer)(nil)

func (t *Tracer) ChannelOpened(ch reactor.ChannelID, description string) {
	t.log.Info("channel opened", slog.Uint64("channel", uint64(ch)), slog.String("description", description))
	if t.m != nil {
		t.m.ChannelsOpen.Inc()
	}
	t.record("channel_opened", ch, description)
}

func (t *Tracer) ChannelClosed(ch reactor.ChannelID, description string) {
	t.log.Info("channel closed", slog.Uint64("channel", uint64(ch)), slog.String("description", description))
	if t.m != nil {
		t.m.ChannelsOpen.Dec()
	}
	t.record("channel_closed", ch, description)
}

func (t *Tracer) UpstreamVerb(ch reactor.ChannelID, verb reactor.Verb) {
	t.log.Debug("upstream verb", slog.Uint64("channel", uint64(ch)), slog.String("verb", verbName(verb)))
	if t.m != nil {
		t.m.UpstreamVerbsTotal.WithLabelValues(verbName(verb)).Inc()
	}
}

func (t *Tracer) DownstreamVerb(ch reactor.ChannelID, verb reactor.Verb) {
	t.log.Debug("downstream verb", slog.Uint64("channel", uint64(ch)), slog.String("verb", verbName(verb)))
}

func (t *Tracer) ImproperLogout(ch reactor.ChannelID, name string) {
	t.log.Warn("improper logout", slog.Uint64("channel", uint64(ch)), slog.String("name", name))
	if t.m != nil {
		t.m.ImproperLogouts.Inc()
	}
	t.record("improper_logout", ch, name)
}

func (t *Tracer) UnknownPostRef(ch reactor.ChannelID, postref uint32) {
	t.log.Warn("unknown postref", slog.Uint64("channel", uint64(ch)), slog.Uint64("postref", uint64(postref)))
	if t.m != nil {
		t.m.UnknownPostRefs.Inc()
	}
}

func (t *Tracer) UnownedPost(ch reactor.ChannelID, postref uint32) {
	t.log.Warn("unowned post", slog.Uint64("channel", uint64(ch)), slog.Uint64("postref", uint64(postref)))
	if t.m != nil {
		t.m.UnownedPosts.Inc()
	}
}

func (t *Tracer) UnwatchedUnsubscribe(ch reactor.ChannelID, name, topic string) {
	t.log.Warn("unwatched unsubscribe", slog.Uint64("channel", uint64(ch)), slog.String("name", name), slog.String("topic", topic))
}

func (t *Tracer) InvalidUpstreamVerb(ch reactor.ChannelID, reason string) {
	t.log.Warn("invalid upstream verb", slog.Uint64("channel", uint64(ch)), slog.String("reason", reason))
	if t.m != nil {
		t.m.InvalidVerbsTotal.WithLabelValues("upstream").Inc()
	}
}

func (t *Tracer) InvalidDownstreamVerb(ch reactor.ChannelID, reason string) {
	t.log.Error("invalid downstream verb", slog.Uint64("channel", uint64(ch)), slog.String("reason", reason))
	if t.m != nil {
		t.m.InvalidVerbsTotal.WithLabelValues("downstream").Inc()
	}
}

func (t *Tracer) SessionActivated(ch reactor.ChannelID, name string) {
	t.log.Info("session activated", slog.Uint64("channel", uint64(ch)), slog.String("name", name))
	if t.m != nil {
		t.m.SessionsActivated.Inc()
	}
	t.record("session_activated", ch, name)
}

func (t *Tracer) ClientUnresponsive(ch reactor.ChannelID, description string) {
	t.log.Warn("client unresponsive", slog.Uint64("channel", uint64(ch)), slog.String("description", description))
	if t.m != nil {
		t.m.ClientsUnresponsive.Inc()
	}
	t.record("client_unresponsive", ch, description)
}

func (t *Tracer) record(kind string, ch reactor.ChannelID, detail string) {
	if t.feed != nil {
		t.feed.Record(kind, uint64(ch), detail)
	}
}

func verbName(v reactor.Verb) string {
	switch v.(type) {
	case *reactor.LoginVerb:
		return "login"
	case *reactor.LogoutVerb:
		return "logout"
	case *reactor.RequestVerb:
		return "request"
	case *reactor.PostVerb:
		return "post"
	case *reactor.SubscribeVerb:
		return "subscribe"
	case *reactor.UnsubscribeVerb:
		return "unsubscribe"
	case *reactor.SessionVerb:
		return "session"
	case *reactor.CallVerb:
		return "call"
	case *reactor.MessageVerb:
		return "message"
	case *reactor.InterestVerb:
		return "interest"
	default:
		return "unknown"
	}
}

package reactor

// Tracer receives a side-effect-only callback at every point of interest
// in reactor processing. Every method is a no-op in NopTracer; production
// builds use a Tracer backed by structured logging and metrics (see
// internal/telemetry), but the reactor itself never
// depends on those packages directly.
type Tracer interface {
	ChannelOpened(channel ChannelID, description string)
	ChannelClosed(channel ChannelID, description string)
	UpstreamVerb(channel ChannelID, verb Verb)
	DownstreamVerb(channel ChannelID, verb Verb)
	ImproperLogout(channel ChannelID, name string)
	UnknownPostRef(channel ChannelID, postref uint32)
	UnownedPost(channel ChannelID, postref uint32)
	UnwatchedUnsubscribe(channel ChannelID, name, topic string)
	InvalidUpstreamVerb(channel ChannelID, reason string)
	InvalidDownstreamVerb(channel ChannelID, reason string)
	SessionActivated(channel ChannelID, name string)
	ClientUnresponsive(channel ChannelID, description string)
}

// NopTracer implements Tracer with no side effects, for tests and for
// embedding by tracers that only care about a subset of hooks.
type NopTracer struct{}

func (NopTracer) ChannelOpened(ChannelID, string)          {}
func (NopTracer) ChannelClosed(ChannelID, string)          {}
func (NopTracer) UpstreamVerb(ChannelID, Verb)             {}
func (NopTracer) DownstreamVerb(ChannelID, Verb)           {}
func (NopTracer) ImproperLogout(ChannelID, string)         {}
func (NopTracer) UnknownPostRef(ChannelID, uint32)         {}
func (NopTracer) UnownedPost(ChannelID, uint32)            {}
func (NopTracer) UnwatchedUnsubscribe(ChannelID, string, string) {}
func (NopTracer) InvalidUpstreamVerb(ChannelID, string)    {}
func (NopTracer) InvalidDownstreamVerb(ChannelID, string)  {}
func (NopTracer) SessionActivated(ChannelID, string)       {}
func (NopTracer) ClientUnresponsive(ChannelID, string)     {}

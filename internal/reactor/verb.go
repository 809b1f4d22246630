package reactor

import "fmt"

// Verb is the common contract for every upstream and downstream message the
// reactor exchanges with a Channel. Concrete verbs carry only semantic
// fields; wire encoding lives entirely in the transport packages.
type Verb interface {
	Validate() error
}

// SessionState is the lifecycle state of a channel's claim on a name,
// carried by SessionVerb.
type SessionState int

const (
	SessionEnded SessionState = iota
	SessionStandby
	SessionActive
)

func (s SessionState) String() string {
	switch s {
	case SessionEnded:
		return "ENDED"
	case SessionStandby:
		return "STANDBY"
	case SessionActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// MessageStatus is the outcome of a REQUEST, carried by MessageVerb.
type MessageStatus int

const (
	MessageOK MessageStatus = iota
	MessageNOK
)

func (s MessageStatus) String() string {
	if s == MessageOK {
		return "OK"
	}
	return "NOK"
}

// MessageReason qualifies a MessageNOK outcome (or is None on MessageOK).
type MessageReason int

const (
	ReasonNone MessageReason = iota
	ReasonTimeout
	ReasonUnreachable
)

func (r MessageReason) String() string {
	switch r {
	case ReasonNone:
		return "NONE"
	case ReasonTimeout:
		return "TIMEOUT"
	case ReasonUnreachable:
		return "UNREACHABLE"
	default:
		return "UNKNOWN"
	}
}

// InterestStatus tells a name owner whether a topic now has subscribers.
type InterestStatus int

const (
	InterestNone InterestStatus = iota
	InterestSome
)

func (s InterestStatus) String() string {
	if s == InterestSome {
		return "INTEREST"
	}
	return "NO_INTEREST"
}

// ---------------------------------------------------------------------------
// Upstream verbs (client -> reactor)
// ---------------------------------------------------------------------------

// LoginVerb requests ownership (or standby candidacy) of a name.
type LoginVerb struct {
	Name    string
	Enforce bool
	Standby bool
	Persist bool
}

func (v *LoginVerb) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("login: empty name")
	}
	return nil
}

// LogoutVerb releases whatever claim the sender holds on a name.
type LogoutVerb struct {
	Name string
}

func (v *LogoutVerb) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("logout: empty name")
	}
	return nil
}

// RequestVerb asks a name's owner to handle a payload, optionally expecting
// a reply within Timeout.
type RequestVerb struct {
	Name            string
	Unidirectional  bool
	MessageRef      uint32
	Timeout         float64 // seconds; 0 means "use the default"
	Payload         []byte
}

func (v *RequestVerb) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("request: empty name")
	}
	if v.Timeout < 0 {
		return fmt.Errorf("request: negative timeout")
	}
	return nil
}

// PostVerb answers an outstanding request (identified by PostRef) with a
// payload.
type PostVerb struct {
	PostRef uint32
	Payload []byte
}

func (v *PostVerb) Validate() error {
	if v.PostRef == 0 {
		return fmt.Errorf("post: zero postref")
	}
	return nil
}

// SubscribeVerb registers the sender's interest in (Name, Topic).
type SubscribeVerb struct {
	Name       string
	MessageRef uint32
	Topic      string
}

func (v *SubscribeVerb) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("subscribe: empty name")
	}
	return nil
}

// UnsubscribeVerb withdraws the sender's interest in (Name, Topic).
type UnsubscribeVerb struct {
	Name  string
	Topic string
}

func (v *UnsubscribeVerb) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("unsubscribe: empty name")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Downstream verbs (reactor -> client)
// ---------------------------------------------------------------------------

// SessionVerb reports the current state of the receiver's claim on Name.
type SessionVerb struct {
	Name  string
	State SessionState
}

func (v *SessionVerb) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("session: empty name")
	}
	return nil
}

// CallVerb delivers a request's payload to a name's owner.
type CallVerb struct {
	Unidirectional bool
	PostRef        uint32 // 0 means "none" (unidirectional calls carry no ref)
	Name           string
	Payload        []byte
}

func (v *CallVerb) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("call: empty name")
	}
	return nil
}

// MessageVerb delivers the outcome of a REQUEST back to its sender.
type MessageVerb struct {
	MessageRef uint32
	Status     MessageStatus
	Reason     MessageReason
	Payload    []byte
}

func (v *MessageVerb) Validate() error {
	return nil
}

// InterestVerb notifies a name's owner that interest in a topic changed.
type InterestVerb struct {
	PostRef uint32
	Name    string
	Status  InterestStatus
	Topic   string
}

func (v *InterestVerb) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("interest: empty name")
	}
	return nil
}

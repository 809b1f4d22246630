package nxtcp

import (
	"fmt"

	"github.com/roel-gerrits/nervix/internal/reactor"
)

// packetToVerb translates one inbound Packet into the reactor verb it
// represents. Packets with no verb equivalent (WELCOME, PING, PONG,
// BYEBYE, QUIT) return ok=false; the connection handles those itself.
func packetToVerb(p Packet) (reactor.Verb, bool, error) {
	switch v := p.(type) {
	case LoginPacket:
		return &reactor.LoginVerb{Name: v.Name, Enforce: v.Enforce, Standby: v.Standby, Persist: v.Persist}, true, nil
	case LogoutPacket:
		return &reactor.LogoutVerb{Name: v.Name}, true, nil
	case RequestPacket:
		return &reactor.RequestVerb{Name: v.Name, Unidirectional: v.Unidirectional, MessageRef: v.MessageRef, Timeout: float64(v.Timeout), Payload: v.Payload}, true, nil
	case PostPacket:
		return &reactor.PostVerb{PostRef: v.PostRef, Payload: v.Payload}, true, nil
	case SubscribePacket:
		return &reactor.SubscribeVerb{Name: v.Name, MessageRef: v.MessageRef, Topic: v.Topic}, true, nil
	case UnsubscribePacket:
		return &reactor.UnsubscribeVerb{Name: v.Name, Topic: v.Topic}, true, nil
	default:
		return nil, false, nil
	}
}

// verbToPacket translates one outbound reactor verb into the Packet that
// carries it over the wire.
func verbToPacket(v reactor.Verb) (Packet, error) {
	switch verb := v.(type) {
	case *reactor.SessionVerb:
		return SessionPacket{Name: verb.Name, State: sessionStateTag(verb.State)}, nil
	case *reactor.CallVerb:
		return CallPacket{Unidirectional: verb.Unidirectional, PostRef: verb.PostRef, Name: verb.Name, Payload: verb.Payload}, nil
	case *reactor.MessageVerb:
		return MessagePacket{MessageRef: verb.MessageRef, Status: messageStatusTag(verb.Status), Reason: messageReasonTag(verb.Reason), Payload: verb.Payload}, nil
	case *reactor.InterestVerb:
		return InterestPacket{PostRef: verb.PostRef, Name: verb.Name, Status: interestStatusTag(verb.Status), Topic: verb.Topic}, nil
	default:
		return nil, fmt.Errorf("nxtcp: no packet encoding for verb %T", v)
	}
}

func sessionStateTag(s reactor.SessionState) uint8 {
	switch s {
	case reactor.SessionStandby:
		return 1
	case reactor.SessionActive:
		return 2
	default:
		return 0
	}
}

func messageStatusTag(s reactor.MessageStatus) uint8 {
	if s == reactor.MessageOK {
		return 0
	}
	return 1
}

func messageReasonTag(r reactor.MessageReason) uint8 {
	switch r {
	case reactor.ReasonTimeout:
		return 1
	case reactor.ReasonUnreachable:
		return 2
	default:
		return 0
	}
}

func interestStatusTag(s reactor.InterestStatus) uint8 {
	if s == reactor.InterestSome {
		return 1
	}
	return 0
}

package nxtcp

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Packet{
		WelcomePacket{Major: 1, Minor: 1},
		LoginPacket{Name: "svc", Enforce: true, Standby: false, Persist: true},
		LogoutPacket{Name: "svc"},
		RequestPacket{Name: "svc", Unidirectional: false, MessageRef: 7, Timeout: 2.5, Payload: []byte("hi")},
		PostPacket{PostRef: 9, Payload: []byte("bye")},
		SubscribePacket{Name: "svc", MessageRef: 3, Topic: "events"},
		UnsubscribePacket{Name: "svc", Topic: "events"},
		SessionPacket{Name: "svc", State: 2},
		CallPacket{Unidirectional: false, PostRef: 9, Name: "svc", Payload: []byte("payload")},
		MessagePacket{MessageRef: 7, Status: 0, Reason: 0, Payload: []byte("ok")},
		InterestPacket{PostRef: 9, Name: "svc", Status: 1, Topic: "events"},
		PingPacket{Payload: []byte("ping")},
		PongPacket{},
		ByeByePacket{},
		QuitPacket{},
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, p := range cases {
		if err := enc.Encode(p); err != nil {
			t.Fatalf("encode %#v: %v", p, err)
		}
	}

	dec := NewDecoder(&buf)
	for i, want := range cases {
		got, err := dec.Decode()
		if err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		if !packetsEqual(got, want) {
			t.Fatalf("packet %d: got %#v, want %#v", i, got, want)
		}
	}
}

func packetsEqual(a, b Packet) bool {
	switch av := a.(type) {
	case RequestPacket:
		bv := b.(RequestPacket)
		return av.Name == bv.Name && av.Unidirectional == bv.Unidirectional &&
			av.MessageRef == bv.MessageRef && av.Timeout == bv.Timeout && bytes.Equal(av.Payload, bv.Payload)
	case PostPacket:
		bv := b.(PostPacket)
		return av.PostRef == bv.PostRef && bytes.Equal(av.Payload, bv.Payload)
	case CallPacket:
		bv := b.(CallPacket)
		return av.Unidirectional == bv.Unidirectional && av.PostRef == bv.PostRef && av.Name == bv.Name && bytes.Equal(av.Payload, bv.Payload)
	case MessagePacket:
		bv := b.(MessagePacket)
		return av.MessageRef == bv.MessageRef && av.Status == bv.Status && av.Reason == bv.Reason && bytes.Equal(av.Payload, bv.Payload)
	case PingPacket:
		bv := b.(PingPacket)
		return bytes.Equal(av.Payload, bv.Payload)
	default:
		return a == b
	}
}

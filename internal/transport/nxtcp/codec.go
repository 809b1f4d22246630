package nxtcp

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Encoder writes Packets to an underlying stream as
// [tag:1][length:4][body] frames.
type Encoder struct {
	w *bufio.Writer
}

func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: bufio.NewWriter(w)} }

// Encode writes one frame and flushes it.
func (e *Encoder) Encode(p Packet) error {
	body, err := marshalBody(p)
	if err != nil {
		return err
	}
	if err := e.w.WriteByte(p.tag()); err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := e.w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := e.w.Write(body); err != nil {
		return err
	}
	return e.w.Flush()
}

// Decoder reads Packets from an underlying stream.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder { return &Decoder{r: bufio.NewReader(r)} }

// Decode blocks until one full frame has been read and parsed.
func (d *Decoder) Decode() (Packet, error) {
	tag, err := d.r.ReadByte()
	if err != nil {
		return nil, err
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(d.r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return nil, err
	}
	return unmarshalBody(tag, body)
}

// ---------------------------------------------------------------------------
// body encode/decode helpers
// ---------------------------------------------------------------------------

type bodyWriter struct{ buf []byte }

func (b *bodyWriter) bool(v bool) {
	if v {
		b.buf = append(b.buf, 1)
	} else {
		b.buf = append(b.buf, 0)
	}
}
func (b *bodyWriter) u8(v uint8)   { b.buf = append(b.buf, v) }
func (b *bodyWriter) u32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}
func (b *bodyWriter) f32(v float32) { b.u32(math.Float32bits(v)) }
func (b *bodyWriter) str(s string) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(len(s)))
	b.buf = append(b.buf, tmp[:]...)
	b.buf = append(b.buf, s...)
}
func (b *bodyWriter) bytes(p []byte) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(p)))
	b.buf = append(b.buf, tmp[:]...)
	b.buf = append(b.buf, p...)
}

type bodyReader struct {
	buf []byte
	pos int
}

func (r *bodyReader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return fmt.Errorf("nxtcp: short packet body")
	}
	return nil
}

func (r *bodyReader) bool() (bool, error) {
	if err := r.need(1); err != nil {
		return false, err
	}
	v := r.buf[r.pos] != 0
	r.pos++
	return v, nil
}
func (r *bodyReader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}
func (r *bodyReader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}
func (r *bodyReader) f32() (float32, error) {
	v, err := r.u32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}
func (r *bodyReader) str() (string, error) {
	if err := r.need(2); err != nil {
		return "", err
	}
	n := int(binary.BigEndian.Uint16(r.buf[r.pos : r.pos+2]))
	r.pos += 2
	if err := r.need(n); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+n])
	r.pos += n
	return s, nil
}
func (r *bodyReader) bytes() ([]byte, error) {
	if err := r.need(4); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4]))
	r.pos += 4
	if err := r.need(n); err != nil {
		return nil, err
	}
	p := r.buf[r.pos : r.pos+n]
	r.pos += n
	return p, nil
}

func marshalBody(p Packet) ([]byte, error) {
	w := &bodyWriter{}
	switch v := p.(type) {
	case WelcomePacket:
		w.u8(v.Major)
		w.u8(v.Minor)
	case LoginPacket:
		w.str(v.Name)
		w.bool(v.Enforce)
		w.bool(v.Standby)
		w.bool(v.Persist)
	case LogoutPacket:
		w.str(v.Name)
	case RequestPacket:
		w.str(v.Name)
		w.bool(v.Unidirectional)
		w.u32(v.MessageRef)
		w.f32(v.Timeout)
		w.bytes(v.Payload)
	case PostPacket:
		w.u32(v.PostRef)
		w.bytes(v.Payload)
	case SubscribePacket:
		w.str(v.Name)
		w.u32(v.MessageRef)
		w.str(v.Topic)
	case UnsubscribePacket:
		w.str(v.Name)
		w.str(v.Topic)
	case SessionPacket:
		w.str(v.Name)
		w.u8(v.State)
	case CallPacket:
		w.bool(v.Unidirectional)
		w.u32(v.PostRef)
		w.str(v.Name)
		w.bytes(v.Payload)
	case MessagePacket:
		w.u32(v.MessageRef)
		w.u8(v.Status)
		w.u8(v.Reason)
		w.bytes(v.Payload)
	case InterestPacket:
		w.u32(v.PostRef)
		w.str(v.Name)
		w.u8(v.Status)
		w.str(v.Topic)
	case PingPacket:
		w.bytes(v.Payload)
	case PongPacket, ByeByePacket, QuitPacket:
		// empty body
	default:
		return nil, fmt.Errorf("nxtcp: unknown packet type %T", p)
	}
	return w.buf, nil
}

func unmarshalBody(tag byte, body []byte) (Packet, error) {
	r := &bodyReader{buf: body}
	switch tag {
	case TagWelcome:
		major, err := r.u8()
		if err != nil {
			return nil, err
		}
		minor, err := r.u8()
		if err != nil {
			return nil, err
		}
		return WelcomePacket{Major: major, Minor: minor}, nil
	case TagLogin:
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		enforce, err := r.bool()
		if err != nil {
			return nil, err
		}
		standby, err := r.bool()
		if err != nil {
			return nil, err
		}
		persist, err := r.bool()
		if err != nil {
			return nil, err
		}
		return LoginPacket{Name: name, Enforce: enforce, Standby: standby, Persist: persist}, nil
	case TagLogout:
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		return LogoutPacket{Name: name}, nil
	case TagRequest:
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		uni, err := r.bool()
		if err != nil {
			return nil, err
		}
		mref, err := r.u32()
		if err != nil {
			return nil, err
		}
		timeout, err := r.f32()
		if err != nil {
			return nil, err
		}
		payload, err := r.bytes()
		if err != nil {
			return nil, err
		}
		return RequestPacket{Name: name, Unidirectional: uni, MessageRef: mref, Timeout: timeout, Payload: payload}, nil
	case TagPost:
		ref, err := r.u32()
		if err != nil {
			return nil, err
		}
		payload, err := r.bytes()
		if err != nil {
			return nil, err
		}
		return PostPacket{PostRef: ref, Payload: payload}, nil
	case TagSubscribe:
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		mref, err := r.u32()
		if err != nil {
			return nil, err
		}
		topic, err := r.str()
		if err != nil {
			return nil, err
		}
		return SubscribePacket{Name: name, MessageRef: mref, Topic: topic}, nil
	case TagUnsubscribe:
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		topic, err := r.str()
		if err != nil {
			return nil, err
		}
		return UnsubscribePacket{Name: name, Topic: topic}, nil
	case TagSession:
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		state, err := r.u8()
		if err != nil {
			return nil, err
		}
		return SessionPacket{Name: name, State: state}, nil
	case TagCall:
		uni, err := r.bool()
		if err != nil {
			return nil, err
		}
		ref, err := r.u32()
		if err != nil {
			return nil, err
		}
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		payload, err := r.bytes()
		if err != nil {
			return nil, err
		}
		return CallPacket{Unidirectional: uni, PostRef: ref, Name: name, Payload: payload}, nil
	case TagMessage:
		mref, err := r.u32()
		if err != nil {
			return nil, err
		}
		status, err := r.u8()
		if err != nil {
			return nil, err
		}
		reason, err := r.u8()
		if err != nil {
			return nil, err
		}
		payload, err := r.bytes()
		if err != nil {
			return nil, err
		}
		return MessagePacket{MessageRef: mref, Status: status, Reason: reason, Payload: payload}, nil
	case TagInterest:
		ref, err := r.u32()
		if err != nil {
			return nil, err
		}
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		status, err := r.u8()
		if err != nil {
			return nil, err
		}
		topic, err := r.str()
		if err != nil {
			return nil, err
		}
		return InterestPacket{PostRef: ref, Name: name, Status: status, Topic: topic}, nil
	case TagPing:
		payload, err := r.bytes()
		if err != nil {
			return nil, err
		}
		return PingPacket{Payload: payload}, nil
	case TagPong:
		return PongPacket{}, nil
	case TagByeBye:
		return ByeByePacket{}, nil
	case TagQuit:
		return QuitPacket{}, nil
	default:
		return nil, fmt.Errorf("nxtcp: unknown packet tag 0x%02x", tag)
	}
}

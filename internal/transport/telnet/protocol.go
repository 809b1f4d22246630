// Package telnet implements nervixd's line-based wire protocol: CRLF
// terminated, space-separated ASCII commands, meant for humans poking at
// the broker with a raw `telnet` or `nc` session rather than a generated
// client library.
package telnet

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/roel-gerrits/nervix/internal/reactor"
)

// Reader reads one CRLF/LF-terminated line at a time.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader { return &Reader{r: bufio.NewReader(r)} }

// ReadLine blocks for the next line, with its terminator stripped.
func (r *Reader) ReadLine() (string, error) {
	line, err := r.r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Writer writes CRLF-terminated reply lines.
type Writer struct {
	w *bufio.Writer
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: bufio.NewWriter(w)} }

// WriteLine writes line followed by CRLF and flushes immediately.
func (w *Writer) WriteLine(line string) error {
	if _, err := w.w.WriteString(line); err != nil {
		return err
	}
	if _, err := w.w.WriteString("\r\n"); err != nil {
		return err
	}
	return w.w.Flush()
}

// ParseLine turns one inbound line into a reactor verb. ok is false for
// QUIT and PONG, which the connection handles itself; err is set for a
// malformed line that a -ERR reply should be sent for.
func ParseLine(line string) (verb reactor.Verb, ok bool, quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, false, false, fmt.Errorf("empty line")
	}
	cmd := strings.ToUpper(fields[0])
	args := fields[1:]

	switch cmd {
	case "QUIT":
		return nil, false, true, nil
	case "PONG":
		return nil, false, false, nil
	case "LOGIN":
		if len(args) < 1 {
			return nil, false, false, fmt.Errorf("LOGIN requires a name")
		}
		v := &reactor.LoginVerb{Name: args[0]}
		for _, flagTok := range args[1:] {
			switch strings.ToUpper(flagTok) {
			case "ENFORCE":
				v.Enforce = true
			case "STANDBY":
				v.Standby = true
			case "PERSIST":
				v.Persist = true
			default:
				return nil, false, false, fmt.Errorf("LOGIN: unknown flag %q", flagTok)
			}
		}
		return v, true, false, nil
	case "LOGOUT":
		if len(args) < 1 {
			return nil, false, false, fmt.Errorf("LOGOUT requires a name")
		}
		return &reactor.LogoutVerb{Name: args[0]}, true, false, nil
	case "REQUEST":
		if len(args) < 4 {
			return nil, false, false, fmt.Errorf("REQUEST requires name, UNI|BI, messageref, timeout, payload")
		}
		uni, err := parseUniBi(args[1])
		if err != nil {
			return nil, false, false, err
		}
		mref, err := strconv.ParseUint(args[2], 10, 32)
		if err != nil {
			return nil, false, false, fmt.Errorf("REQUEST: bad messageref: %w", err)
		}
		timeout, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return nil, false, false, fmt.Errorf("REQUEST: bad timeout: %w", err)
		}
		payload := payloadRemainder(line, 6)
		return &reactor.RequestVerb{Name: args[0], Unidirectional: uni, MessageRef: uint32(mref), Timeout: timeout, Payload: []byte(payload)}, true, false, nil
	case "POST":
		if len(args) < 1 {
			return nil, false, false, fmt.Errorf("POST requires a postref")
		}
		ref, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return nil, false, false, fmt.Errorf("POST: bad postref: %w", err)
		}
		payload := payloadRemainder(line, 3)
		return &reactor.PostVerb{PostRef: uint32(ref), Payload: []byte(payload)}, true, false, nil
	case "SUBSCRIBE":
		if len(args) < 3 {
			return nil, false, false, fmt.Errorf("SUBSCRIBE requires name, messageref, topic")
		}
		mref, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return nil, false, false, fmt.Errorf("SUBSCRIBE: bad messageref: %w", err)
		}
		return &reactor.SubscribeVerb{Name: args[0], MessageRef: uint32(mref), Topic: args[2]}, true, false, nil
	case "UNSUBSCRIBE":
		if len(args) < 2 {
			return nil, false, false, fmt.Errorf("UNSUBSCRIBE requires name, topic")
		}
		return &reactor.UnsubscribeVerb{Name: args[0], Topic: args[1]}, true, false, nil
	default:
		return nil, false, false, fmt.Errorf("unknown command %q", cmd)
	}
}

func parseUniBi(tok string) (bool, error) {
	switch strings.ToUpper(tok) {
	case "UNI":
		return true, nil
	case "BI":
		return false, nil
	default:
		return false, fmt.Errorf("expected UNI or BI, got %q", tok)
	}
}

// payloadRemainder returns everything in line from the minFields'th
// single-space-separated field (counting from 1) onward, verbatim (so the
// payload itself may contain spaces), or "" if line has fewer fields.
func payloadRemainder(line string, minFields int) string {
	fields := strings.SplitN(line, " ", minFields)
	if len(fields) < minFields {
		return ""
	}
	return fields[minFields-1]
}

// FormatVerb renders one downstream reactor verb as a reply line.
func FormatVerb(v reactor.Verb) (string, error) {
	switch verb := v.(type) {
	case *reactor.SessionVerb:
		return fmt.Sprintf("+SESSION %s %s", verb.Name, verb.State), nil
	case *reactor.CallVerb:
		ref := "-"
		if verb.PostRef != 0 {
			ref = strconv.FormatUint(uint64(verb.PostRef), 10)
		}
		uni := "BI"
		if verb.Unidirectional {
			uni = "UNI"
		}
		return fmt.Sprintf("+CALL %s %s %s %s", verb.Name, uni, ref, string(verb.Payload)), nil
	case *reactor.MessageVerb:
		return fmt.Sprintf("+MESSAGE %d %s %s %s", verb.MessageRef, verb.Status, verb.Reason, string(verb.Payload)), nil
	case *reactor.InterestVerb:
		return fmt.Sprintf("+INTEREST %d %s %s %s", verb.PostRef, verb.Name, verb.Status, verb.Topic), nil
	default:
		return "", fmt.Errorf("telnet: no line encoding for verb %T", v)
	}
}

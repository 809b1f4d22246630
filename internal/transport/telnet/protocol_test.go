package telnet

import (
	"testing"

	"github.com/roel-gerrits/nervix/internal/reactor"
)

func TestParseLineLogin(t *testing.T) {
	v, ok, quit, err := ParseLine("LOGIN svc ENFORCE PERSIST")
	if err != nil || !ok || quit {
		t.Fatalf("unexpected parse result: ok=%v quit=%v err=%v", ok, quit, err)
	}
	login := v.(*reactor.LoginVerb)
	if login.Name != "svc" || !login.Enforce || login.Standby || !login.Persist {
		t.Fatalf("unexpected verb: %#v", login)
	}
}

func TestParseLineRequestWithPayload(t *testing.T) {
	v, ok, _, err := ParseLine("REQUEST svc BI 5 2.5 hello world")
	if err != nil || !ok {
		t.Fatalf("unexpected parse result: ok=%v err=%v", ok, err)
	}
	req := v.(*reactor.RequestVerb)
	if req.Name != "svc" || req.Unidirectional || req.MessageRef != 5 || req.Timeout != 2.5 || string(req.Payload) != "hello world" {
		t.Fatalf("unexpected verb: %#v", req)
	}
}

func TestParseLinePostWithPayload(t *testing.T) {
	v, ok, _, err := ParseLine("POST 7 hello world")
	if err != nil || !ok {
		t.Fatalf("unexpected parse result: ok=%v err=%v", ok, err)
	}
	post := v.(*reactor.PostVerb)
	if post.PostRef != 7 || string(post.Payload) != "hello world" {
		t.Fatalf("unexpected verb: %#v", post)
	}
}

func TestParseLineQuit(t *testing.T) {
	_, ok, quit, err := ParseLine("quit")
	if err != nil || ok || !quit {
		t.Fatalf("unexpected parse result: ok=%v quit=%v err=%v", ok, quit, err)
	}
}

func TestParseLineMalformed(t *testing.T) {
	_, _, _, err := ParseLine("REQUEST svc NOTAUNI 1 2")
	if err == nil {
		t.Fatalf("expected error for malformed UNI|BI token")
	}
}

func TestFormatVerbSession(t *testing.T) {
	line, err := FormatVerb(&reactor.SessionVerb{Name: "svc", State: reactor.SessionActive})
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if line != "+SESSION svc ACTIVE" {
		t.Fatalf("unexpected line: %q", line)
	}
}

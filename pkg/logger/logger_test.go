package logger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithRequestID(ctx, "req-123")
	ctx = log.WithSessionID(ctx, "sess-1")

	log.Error(ctx, "boom", errors.New("boom"))

	for _, field := range []string{"\"request_id\"", "\"session_id\"", "\"stack\""} {
		if !bytes.Contains(buf.Bytes(), []byte(field)) {
			t.Fatalf("expected %s in entry=%s", field, buf.String())
		}
	}
}

func TestLoggerErrorTagsCodedErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	err := fmt.Errorf("confirm: %w", pkgerrors.New(pkgerrors.CodeConflict, "amount mismatch"))
	log.Error(context.Background(), "payment rejected", err)

	if !bytes.Contains(buf.Bytes(), []byte(`"error_code":"`+string(pkgerrors.CodeConflict)+`"`)) {
		t.Fatalf("expected error_code in entry=%s", buf.String())
	}
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})
	log.Warn(context.Background(), "warny")
	if bytes.Contains(buf.Bytes(), []byte("\"stack\"")) {
		t.Fatalf("did not expect stack when warn stack disabled")
	}

	buf.Reset()
	log = New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	if !bytes.Contains(buf.Bytes(), []byte("\"stack\"")) {
		t.Fatalf("expected stack when warn stack enabled")
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.InfoLevel {
		t.Fatalf("invalid level should fallback to info, got %v", lvl)
	}
	if lvl := ParseLevel(" DEBUG "); lvl != zerolog.DebugLevel {
		t.Fatalf("expected debug, got %v", lvl)
	}
}

func TestLoggerFieldsDoNotLeakBetweenContexts(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf, Format: FormatJSON})

	parent := log.WithCheckoutID(context.Background(), "chk-1")
	_ = log.WithPaymentIntentID(parent, "pi_123")
	log.Info(parent, "parent entry")

	if !bytes.Contains(buf.Bytes(), []byte(`"checkout_id":"chk-1"`)) {
		t.Fatalf("expected checkout id in entry=%s", buf.String())
	}
	if bytes.Contains(buf.Bytes(), []byte("pi_123")) {
		t.Fatalf("child field leaked into parent entry=%s", buf.String())
	}
}

func TestLoggerConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf, Format: FormatConsole})
	log.Info(context.Background(), "hello console")

	if bytes.HasPrefix(bytes.TrimSpace(buf.Bytes()), []byte("{")) {
		t.Fatalf("expected console output, got %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("hello console")) {
		t.Fatalf("message missing from %s", buf.String())
	}
}

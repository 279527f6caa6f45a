package gologger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestResolveDeterministicFallback(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	var resolvedProvider glog.LoggerProvider
	_, resolved := Resolve("tokenpool", provider, loggerOnly)
	got := resolved.(*capturingLogger)
	if got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolvedProvider, resolved = Resolve("tokenpool", nil, loggerOnly)
	got = resolved.(*capturingLogger)
	if got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	_, resolved = Resolve("tokenpool", nil, nil)
	if resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestNewLogger_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("debug", &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("account refreshed", "account_id", "a1", "attempt", 2, "error", errors.New("boom"), "dangling")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["message"] != "account refreshed" || entry["level"] != "info" {
		t.Fatalf("unexpected entry %#v", entry)
	}
	if entry["account_id"] != "a1" || entry["attempt"] != float64(2) || entry["error"] != "boom" || entry["arg"] != "dangling" {
		t.Fatalf("unexpected fields %#v", entry)
	}
}

func TestNewLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("warn", &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}
	logger.Fatal("still running")
	if !strings.Contains(buf.String(), `"level":"fatal"`) {
		t.Fatalf("expected fatal entry, got %q", buf.String())
	}
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger("loud", &bytes.Buffer{}); err == nil {
		t.Fatalf("expected unknown level error")
	}
}

func TestProvider_TagsComponent(t *testing.T) {
	var buf bytes.Buffer
	root, err := NewLogger("info", &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	_, resolved := Resolve("tokenpool.scheduler", NewProvider(root), nil)
	resolved.WithContext(context.Background()).Info("run started")
	if !strings.Contains(buf.String(), `"component":"tokenpool.scheduler"`) {
		t.Fatalf("expected component field, got %q", buf.String())
	}
	if (*Provider)(nil).GetLogger("x") == nil {
		t.Fatalf("expected nop logger from nil provider")
	}
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger *capturingLogger
}

func (p *capturingProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{
		msg:  msg,
		args: append([]any(nil), args...),
	}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}

package gologger

import (
	"context"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestResolveDeterministicFallback(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	var resolvedProvider glog.LoggerProvider
	_, resolved := Resolve("dcb", provider, loggerOnly)
	got := resolved.(*capturingLogger)
	if got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolvedProvider, resolved = Resolve("dcb", nil, loggerOnly)
	got = resolved.(*capturingLogger)
	if got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	_, resolved = Resolve("dcb", nil, nil)
	if resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestGoJobBridgeCompatibility(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	_, _, jobProvider, jobLogger := ResolveForJob("dcb", provider, nil)
	if jobProvider == nil {
		t.Fatalf("expected go-job provider bridge")
	}
	if jobLogger == nil {
		t.Fatalf("expected go-job logger bridge")
	}

	bridged := jobProvider.GetLogger("dcb")
	bridged.Info("hello", "k", "v")

	captured := providerLogger.lastInfo
	if captured.msg != "hello" {
		t.Fatalf("expected bridged message, got %q", captured.msg)
	}
	if captured.args[0] != "k" || captured.args[1] != "v" {
		t.Fatalf("expected bridged args, got %#v", captured.args)
	}
}

func TestNamedPrefersProviderLogger(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	got := Named("dcb.events", &capturingProvider{logger: providerLogger}, &capturingLogger{id: "direct"})
	if got.(*capturingLogger).id != "provider" {
		t.Fatalf("expected provider logger")
	}
	if Named("dcb.events", nil, nil) == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestWithFieldsUsesFieldsLogger(t *testing.T) {
	fields := &fieldsLogger{capturingLogger: &capturingLogger{id: "fields"}}
	out := WithFields(fields, map[string]any{"transaction_id": "tx-1"})
	if out == nil || fields.last["transaction_id"] != "tx-1" {
		t.Fatalf("expected fields attached, got %#v", fields.last)
	}

	plain := &capturingLogger{id: "plain"}
	if WithFields(plain, map[string]any{"k": "v"}) != plain {
		t.Fatalf("expected plain logger returned unchanged")
	}
}

func TestArgsSortedPairs(t *testing.T) {
	args := Args(map[string]any{"status": "OPEN", "role": "LENDER"})
	if len(args) != 4 || args[0] != "role" || args[1] != "LENDER" || args[2] != "status" || args[3] != "OPEN" {
		t.Fatalf("unexpected args %#v", args)
	}
}

type fieldsLogger struct {
	*capturingLogger
	last map[string]any
}

func (l *fieldsLogger) WithFields(fields map[string]any) glog.Logger {
	l.last = fields
	return l
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

package cmd

import (
	"errors"
	"testing"

	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"to=abc", "note=a=b", "empty="})
	if err != nil {
		t.Fatalf("parseParams failed: %v", err)
	}
	if params["to"] != "abc" {
		t.Errorf("Expected to=abc, got %v", params["to"])
	}
	if params["note"] != "a=b" {
		t.Errorf("Expected note=a=b, got %v", params["note"])
	}
	if params["empty"] != "" {
		t.Errorf("Expected empty value, got %v", params["empty"])
	}
}

func TestParseParamsInvalid(t *testing.T) {
	for _, arg := range []string{"novalue", "=value"} {
		if _, err := parseParams([]string{arg}); err == nil {
			t.Errorf("Expected error for %q", arg)
		}
	}
}

func TestPrintResultFailure(t *testing.T) {
	err := printResult(protocol.Result{Error: "boom", Code: protocol.ErrTimeout})
	if !errors.Is(err, protocol.ErrTimeout) {
		t.Errorf("Expected timeout error, got %v", err)
	}
}

func TestFormatTime(t *testing.T) {
	if got := formatTime(0); got != "-" {
		t.Errorf("Expected -, got %s", got)
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"keygen", "call", "invite", "contacts", "chatroom", "dial", "listen"} {
		if c, _, err := rootCmd.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("Expected %s command to be registered", name)
		}
	}
}

package main

import (
	"bytes"
	"context"
	"flag"
	"reflect"
	"strings"
	"testing"

	"github.com/raezil/agentchat-go/agent"
)

func TestCmdExtract(t *testing.T) {
	var out, errOut bytes.Buffer
	code := cmdExtract(strings.NewReader("```json\n{\"a\":[1,2,],}\n```"), &out, &errOut)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut.String())
	}
	if got := out.String(); got != "{\n  \"a\": [\n    1,\n    2\n  ]\n}\n" {
		t.Fatalf("output = %q", got)
	}

	out.Reset()
	if code := cmdExtract(strings.NewReader("not json at all"), &out, &errOut); code != 1 {
		t.Fatalf("exit %d for prose", code)
	}
	if out.Len() != 0 || !strings.Contains(errOut.String(), "no JSON") {
		t.Fatalf("stdout=%q stderr=%q", out.String(), errOut.String())
	}
}

func TestSplitCSV(t *testing.T) {
	if got := splitCSV(" a, ,b ,"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("splitCSV = %v", got)
	}
	if splitCSV("") != nil {
		t.Fatal("empty input should yield nil")
	}
}

func TestNewApp_ForwardersFollowConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  agent.Config
		want bool
	}{
		{"standalone", agent.Config{APIKey: "k", AgentID: "a", Provider: "http"}, false},
		{"webhook host", agent.Config{APIKey: "k", AgentID: "a", Provider: "http", HostURL: "http://127.0.0.1:1/hook"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			common := registerCommon(flag.NewFlagSet("test", flag.ContinueOnError))
			a, err := newApp(context.Background(), tt.cfg, common)
			if err != nil {
				t.Fatalf("newApp: %v", err)
			}
			defer a.close()
			if a.relay.Embedded() != tt.want || tt.cfg.Embedded() != tt.want {
				t.Fatalf("relay embedded = %v, config embedded = %v, want %v", a.relay.Embedded(), tt.cfg.Embedded(), tt.want)
			}
		})
	}
}

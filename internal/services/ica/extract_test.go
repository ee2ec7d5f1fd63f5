package ica

import (
	"errors"
	"strings"
	"testing"

	"portkiller/internal/knowledge"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare object", in: `  {"a":1}  `, want: `{"a":1}`},
		{name: "trailing prose", in: `{"a":{"b":2}} hope this helps`, want: `{"a":{"b":2}}`},
		{name: "leading prose", in: `Here you go: {"a":1} done`, want: `{"a":1}`},
		{name: "fenced", in: "Sure!\n```json\n{\"a\": 1}\n```\nAnything else?", want: `{"a": 1}`},
		{name: "fence without trailing newline", in: "```json\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "brace inside string", in: `{"name":"a } b","x":1}`, want: `{"name":"a } b","x":1}`},
		{name: "escaped quote", in: `{"name":"say \"}\" now","x":1} tail`, want: `{"name":"say \"}\" now","x":1}`},
		{name: "nested", in: `x {"a":{"b":{"c":3}}} y`, want: `{"a":{"b":{"c":3}}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.in)
			if err != nil {
				t.Fatalf("ExtractJSON: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtractJSONNoObject(t *testing.T) {
	for _, in := range []string{"", "no json here", "{ never closed"} {
		if _, err := ExtractJSON(in); !errors.Is(err, ErrNoJSON) {
			t.Fatalf("ExtractJSON(%q) err = %v, want ErrNoJSON", in, err)
		}
	}
}

func TestParseResponse(t *testing.T) {
	reply := "```json\n" + `{
  "display_name": "Vite Dev Server",
  "description": "Frontend dev server.",
  "category": "frontend",
  "group_hint": "Shop Stack",
  "confidence": 0.92
}` + "\n```"
	resp, err := ParseResponse(reply)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if resp.DisplayName != "Vite Dev Server" || resp.Category != knowledge.CategoryFrontend {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.GroupHint == nil || *resp.GroupHint != "Shop Stack" {
		t.Fatalf("group hint = %v", resp.GroupHint)
	}
	if resp.Confidence != 0.92 {
		t.Fatalf("confidence = %v", resp.Confidence)
	}
}

func TestParseResponseNullGroupAndClamp(t *testing.T) {
	resp, err := ParseResponse(`{"display_name":"X","description":"d","category":"dev_tool","group_hint":null,"confidence":1.7}`)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if resp.GroupHint != nil {
		t.Fatalf("expected nil group hint, got %q", *resp.GroupHint)
	}
	if resp.Category != knowledge.CategoryDevTool {
		t.Fatalf("category = %q", resp.Category)
	}
	if resp.Confidence != 1 {
		t.Fatalf("confidence = %v, want 1", resp.Confidence)
	}
}

func TestParseResponseRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "missing fields", in: `{"display_name":"X"}`, want: "missing description, category, confidence"},
		{name: "unknown category", in: `{"display_name":"X","description":"d","category":"toaster","confidence":0.5}`, want: "category"},
		{name: "wrong type", in: `{"display_name":"X","description":"d","category":"backend","confidence":"high"}`, want: "decode analysis"},
		{name: "no json", in: "I cannot help with that.", want: "no valid JSON"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseResponse(tc.in)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

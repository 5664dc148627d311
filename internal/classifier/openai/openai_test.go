package openai

import (
	"strings"
	"testing"

	"github.com/SilentInt/HamsterWallet/internal/taxonomy"
)

func TestStripFences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"success": true}`, `{"success": true}`},
		{"```json\n{\"success\": true}\n```", `{"success": true}`},
		{"```\n{\"success\": true}\n```", `{"success": true}`},
		{"  \n```json\n{}\n```\n  ", `{}`},
		{"", ""},
	}
	for i, tc := range cases {
		if got := stripFences(tc.in); got != tc.want {
			t.Fatalf("case %d: got %q, want %q", i, got, tc.want)
		}
	}
}

func TestDecodeReply(t *testing.T) {
	good := `{"success": true, "results": [{"item_id": 7, "category_id": 3, "category_name": "Snacks", "reason": "salty"}]}`
	proposals, err := decodeReply(good)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(proposals) != 1 {
		t.Fatalf("expected 1 proposal, got %d", len(proposals))
	}
	p := proposals[0]
	if p.ItemID != 7 || p.CategoryID != 3 || p.CategoryName != "Snacks" || p.Reason != "salty" {
		t.Fatalf("unexpected proposal: %+v", p)
	}

	// Fenced output decodes the same way.
	fenced := "```json\n" + good + "\n```"
	if _, err := decodeReply(fenced); err != nil {
		t.Fatalf("decode fenced: %v", err)
	}
}

func TestDecodeReplyFailures(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantSub string
	}{
		{"empty", "", "empty"},
		{"whitespace", "   \n", "empty"},
		{"not json", "sorry, I cannot help with that", "decode"},
		{"declared failure", `{"success": false, "error": "taxonomy too ambiguous"}`, "taxonomy too ambiguous"},
		{"declared failure no reason", `{"success": false}`, "declared failure"},
		{"no results", `{"success": true, "results": []}`, "no results"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeReply(tc.content)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q missing %q", err.Error(), tc.wantSub)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	if _, err := buildPrompt(nil); err == nil {
		t.Fatalf("expected error for empty taxonomy")
	}

	prompt, err := buildPrompt([]taxonomy.TaxonomyEntry{
		{ID: 1, Name: "Food", Level: 1, Path: "Food"},
		{ID: 2, Name: "Snacks", Level: 2, Path: "Food > Snacks"},
	})
	if err != nil {
		t.Fatalf("build prompt: %v", err)
	}
	for _, want := range []string{"category_id", "Food > Snacks", "2\t2\t"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}

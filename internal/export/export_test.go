package export

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"tessera/api/internal/block"
)

func TestBlocksToHTMLRendersKnownTypes(t *testing.T) {
	blocks := []renderBlock{
		{Type: block.TypeText, Content: json.RawMessage(`{"title":"Notes","text":"line one\nline two"}`)},
		{Type: block.TypeTable, Content: json.RawMessage(`{
			"rows":2,"cols":2,
			"cells":[["Item","Qty"],["apples","10"]],
			"columns":[{"name":"Item","type":"text"},{"name":"Qty","type":"number"}]
		}`)},
		{Type: block.TypeTasks, Content: json.RawMessage(`{
			"title":"Todo",
			"order":["t2","t1"],
			"tasks":[{"id":"t1","text":"ship it","status":"done"},{"id":"t2","text":"write docs","status":"todo"}]
		}`)},
		{Type: block.TypeEmbed, Content: json.RawMessage(`{"url":"https://example.com/a?b=1&c=2"}`)},
		{Type: block.TypeShopify, Content: json.RawMessage(`{}`)},
	}

	html := BlocksToHTML(blocks)

	for _, want := range []string{
		"<h2>Notes</h2>", "<p>line one</p>", "<p>line two</p>",
		"<th>Item</th>", "<td>apples</td>",
		"<h2>Todo</h2>", "ship it", "write docs",
		"https://example.com/a?b=1&amp;c=2",
		"[shopify block]",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("missing %q in rendered HTML:\n%s", want, html)
		}
	}

	// Order array drives task ordering.
	if strings.Index(html, "write docs") > strings.Index(html, "ship it") {
		t.Fatal("task order array not respected")
	}
}

func TestBlocksToHTMLEscapesContent(t *testing.T) {
	blocks := []renderBlock{
		{Type: block.TypeText, Content: json.RawMessage(`{"text":"<script>alert(1)</script>"}`)},
	}
	html := BlocksToHTML(blocks)
	if strings.Contains(html, "<script>") {
		t.Fatal("content must be escaped")
	}
	if !strings.Contains(html, "&lt;script&gt;") {
		t.Fatalf("expected escaped markup:\n%s", html)
	}
}

func TestRenderTabHTML(t *testing.T) {
	out, err := RenderTabHTML(TemplateData{
		Title:       "Roadmap",
		ProjectName: "Tessera",
		ContentHTML: "<p>body</p>",
		ExportedAt:  time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"<h1>Roadmap</h1>", "Tessera", "<p>body</p>", "Aug 23, 2026"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in template output", want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Q3 Roadmap", "Q3-Roadmap"},
		{"notes/2026*draft", "notes2026draft"},
		{"", "tab"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b+c")
	if got != "a%20b%2Bc" {
		t.Fatalf("encoded %q", got)
	}
	if strings.Contains(percentEncodeForDataURL("hello world"), "+") {
		t.Fatal("spaces must never encode as +")
	}
}

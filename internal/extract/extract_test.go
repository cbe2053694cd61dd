package extract

import (
	"net/url"
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>  Welcome Page  </title>
  <style>body { color: red; }</style>
  <script>console.log("tracking");</script>
</head>
<body>
  <h1>Hello</h1>
  <p>Some   content  here</p>
  <noscript>Please enable JavaScript</noscript>
  <a href="/about">About</a>
  <a href="/about#team">Team</a>
  <a href="https://other.example.net/page">External</a>
  <a href="javascript:void(0)">Click</a>
  <a href="mailto:info@example.com">Mail</a>
</body>
</html>`

func TestPageExtractsTitleAndText(t *testing.T) {
	content, err := Page([]byte(samplePage))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if content.Title != "Welcome Page" {
		t.Fatalf("expected title %q, got %q", "Welcome Page", content.Title)
	}
	if strings.Contains(content.Text, "color: red") {
		t.Fatal("style content leaked into extracted text")
	}
	if strings.Contains(content.Text, "tracking") {
		t.Fatal("script content leaked into extracted text")
	}
	if strings.Contains(content.Text, "enable JavaScript") {
		t.Fatal("noscript content leaked into extracted text")
	}
	if !strings.Contains(content.Text, "Hello") {
		t.Fatalf("expected body text in output, got %q", content.Text)
	}
	if !strings.Contains(content.Text, "Some") || !strings.Contains(content.Text, "content") {
		t.Fatalf("expected paragraph text in output, got %q", content.Text)
	}
}

func TestPageRejectsEmptyBody(t *testing.T) {
	if _, err := Page(nil); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestLinksResolvesAndFilters(t *testing.T) {
	base, _ := url.Parse("https://example.com/start")
	links := Links([]byte(samplePage), base, 0)

	got := make([]string, 0, len(links))
	for _, l := range links {
		got = append(got, l.String())
	}

	want := []string{
		"https://example.com/about",
		"https://other.example.net/page",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d links, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("link %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestLinksHonorsLimit(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 20; i++ {
		sb.WriteString(`<a href="/p` + string(rune('a'+i)) + `">x</a>`)
	}
	sb.WriteString("</body></html>")

	base, _ := url.Parse("https://example.com/")
	links := Links([]byte(sb.String()), base, 5)
	if len(links) != 5 {
		t.Fatalf("expected 5 links, got %d", len(links))
	}
}

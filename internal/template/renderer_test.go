package template

import (
	"strings"
	"testing"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

func TestRenderSubstitutesFields(t *testing.T) {
	r := NewRenderer()
	rec := &domain.Recipient{
		Name:     "Alice",
		Email:    "alice@example.com",
		Category: "vip",
		Address:  "12 Main St",
	}

	out, err := r.Render("", "Hello {{name}}, offer for {{category}} at {{address}}", RecipientContext(rec))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Hello Alice, offer for vip at 12 Main St" {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestRenderMissingFieldEmpty(t *testing.T) {
	r := NewRenderer()
	rec := &domain.Recipient{Email: "bob@example.com"}

	out, err := r.Render("", "Hi {{name}}!", RecipientContext(rec))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Hi !" {
		t.Errorf("missing field should render empty, got %q", out)
	}
}

func TestRenderParseErrorReturnsOriginal(t *testing.T) {
	r := NewRenderer()
	tpl := "broken {% if %} template"

	out, err := r.Render("", tpl, map[string]interface{}{})
	if err == nil {
		t.Fatal("expected parse error")
	}
	if out != tpl {
		t.Errorf("lax fallback should return original text, got %q", out)
	}
}

func TestRenderCacheReuse(t *testing.T) {
	r := NewRenderer()
	ctx := map[string]interface{}{"name": "Cara"}

	first, err := r.Render("k1", "Hey {{name}}", ctx)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	second, err := r.Render("k1", "ignored because cached", ctx)
	if err != nil {
		t.Fatalf("cached render: %v", err)
	}
	if first != second {
		t.Errorf("cache miss: %q vs %q", first, second)
	}
}

func TestRenderMessage(t *testing.T) {
	r := NewRenderer()
	tpl := &domain.Template{
		ID:      "t1",
		Subject: "{{name | default: \"Friend\"}}, your update",
		HTML:    "<p>Hello {{name | capitalize}}</p>",
	}
	rec := &domain.Recipient{Name: "dana", Email: "dana@example.com"}

	subject, html := r.RenderMessage(tpl, rec)
	if subject != "dana, your update" {
		t.Errorf("subject: %q", subject)
	}
	if !strings.Contains(html, "Hello Dana") {
		t.Errorf("html: %q", html)
	}
}

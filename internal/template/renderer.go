// Package template renders campaign message templates with the Liquid
// template language. Placeholders like {{name}} resolve from recipient
// fields; unknown variables render empty, so a partially filled import
// row still produces a sendable message.
package template

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// Renderer wraps a Liquid engine with a compiled-template cache. Safe for
// concurrent use.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer with the custom filters registered.
func NewRenderer() *Renderer {
	r := &Renderer{engine: liquid.NewEngine()}
	r.registerFilters()
	return r
}

func (r *Renderer) registerFilters() {
	// Fallback value: {{ name | default: "Friend" }}
	r.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	// Capitalize first letter: {{ name | capitalize }}
	r.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	})

	// Truncate with ellipsis: {{ address | truncate: 50 }}
	r.engine.RegisterFilter("truncate", func(s string, length int) string {
		if len(s) <= length {
			return s
		}
		if length <= 3 {
			return s[:length]
		}
		return s[:length-3] + "..."
	})

	// Mask an address for logs or previews: {{ email | mask_email }}
	r.engine.RegisterFilter("mask_email", func(email string) string {
		parts := strings.Split(email, "@")
		if len(parts) != 2 {
			return email
		}
		local := parts[0]
		if len(local) <= 2 {
			return local + "***@" + parts[1]
		}
		return local[:2] + "***@" + parts[1]
	})
}

// Parse compiles a template string and returns any syntax error.
func (r *Renderer) Parse(templateStr string) error {
	_, err := r.engine.ParseString(templateStr)
	return err
}

// Render processes a template against the given context. Compiled
// templates are cached under cacheKey when one is provided. On parse or
// render errors the original template text is returned so a bad template
// degrades to a literal send rather than a lost one.
func (r *Renderer) Render(cacheKey, templateStr string, ctx map[string]interface{}) (string, error) {
	if cacheKey != "" {
		if cached, ok := r.cache.Load(cacheKey); ok {
			return cached.(*liquid.Template).RenderString(ctx)
		}
	}

	tpl, err := r.engine.ParseString(templateStr)
	if err != nil {
		log.Printf("[Renderer] Parse error: %v", err)
		return templateStr, err
	}

	if cacheKey != "" {
		r.cache.Store(cacheKey, tpl)
	}

	out, err := tpl.RenderString(ctx)
	if err != nil {
		log.Printf("[Renderer] Render error: %v", err)
		return templateStr, err
	}
	return out, nil
}

// RenderMessage renders a campaign template's subject and body for one
// recipient. Errors degrade to the raw template text.
func (r *Renderer) RenderMessage(tpl *domain.Template, rec *domain.Recipient) (subject, html string) {
	ctx := RecipientContext(rec)
	subject, _ = r.Render(tpl.ID+":subject", tpl.Subject, ctx)
	html, _ = r.Render(tpl.ID+":html", tpl.HTML, ctx)
	return subject, html
}

// RecipientContext exposes the personalization fields of a recipient.
// Absent fields are present as empty strings, which Liquid renders as
// nothing.
func RecipientContext(rec *domain.Recipient) map[string]interface{} {
	return map[string]interface{}{
		"name":     rec.Name,
		"email":    rec.Email,
		"category": rec.Category,
		"address":  rec.Address,
	}
}

// ClearCache drops all compiled templates.
func (r *Renderer) ClearCache() {
	r.cache = sync.Map{}
}

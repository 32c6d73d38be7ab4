// Package sources enriches stored businesses with license, permit, review
// and social-profile data. The lookups are prompt templates over the
// Perplexity chat API whose answers are read back with regular expressions.
package sources

import (
	"context"
	"strings"
	"text/template"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/internal/resilience"
	"github.com/sells-group/hvac-targets/pkg/perplexity"
)

const lookupSystem = `You are a research assistant checking public records for Texas HVAC
contractors. Answer only with the requested lines. If nothing is found, answer
"NONE".`

// asker sends a rendered prompt through a circuit breaker.
type asker struct {
	client  perplexity.Client
	breaker *resilience.CircuitBreaker
	tmpl    *template.Template
}

func newAsker(client perplexity.Client, name, tmpl string) *asker {
	return &asker{
		client:  client,
		breaker: resilience.NewCircuitBreaker("perplexity-"+name, 5, time.Minute),
		tmpl:    template.Must(template.New(name).Parse(tmpl)),
	}
}

func (a *asker) ask(ctx context.Context, data any) (string, error) {
	var sb strings.Builder
	if err := a.tmpl.Execute(&sb, data); err != nil {
		return "", eris.Wrapf(err, "sources: render %s prompt", a.tmpl.Name())
	}

	temp := 0.0
	var text string
	err := a.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := a.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
			Messages: []perplexity.Message{
				{Role: "system", Content: lookupSystem},
				{Role: "user", Content: sb.String()},
			},
			Temperature: &temp,
		})
		if err != nil {
			return err
		}
		text = resp.Text()
		return nil
	})
	if err != nil {
		return "", eris.Wrapf(err, "sources: %s lookup", a.tmpl.Name())
	}
	return text, nil
}

// subject is the template data shared by the lookup prompts.
type subject struct {
	Name      string
	City      string
	County    string
	OwnerName string
	Since     string
	Until     string
}

func subjectOf(b *model.Business) subject {
	return subject{Name: b.Name, City: b.City, County: b.County, OwnerName: b.OwnerName}
}

const datePattern = `(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4})`

var dateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006"}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

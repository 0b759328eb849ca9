package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/dukapos/dukapos/internal/shared"
)

// Generator produces model output for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, jsonOutput bool) (string, error)
}

// FlowError reports a failed flow with a message safe to show users.
type FlowError struct {
	Flow    string
	Message string
	Err     error
}

func (e *FlowError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

// Unwrap exposes both the upstream sentinel and the cause.
func (e *FlowError) Unwrap() []error {
	return []error{shared.ErrUpstream, e.Err}
}

// ReorderInput carries the plain-text store context for reorder advice.
type ReorderInput struct {
	SalesData      string
	ProductDetails string
}

// ReorderItem is one suggested purchase.
type ReorderItem struct {
	ProductName string `json:"productName" validate:"required"`
	Quantity    int    `json:"quantity" validate:"gt=0"`
	Reason      string `json:"reason"`
}

// ReorderSuggestion is the typed output of the reorder flow.
type ReorderSuggestion struct {
	ItemsToReorder []ReorderItem `json:"itemsToReorder" validate:"dive"`
}

// ReportInput carries the plain-text store context for the email report.
type ReportInput struct {
	BusinessName    string
	SalesData       string
	LowStockItems   string
	OutOfStockItems string
}

var reorderPrompt = template.Must(template.New("reorder").Parse(`You are an inventory planner for a small retail shop.
Using the recent sales and current stock below, decide which products should be reordered and how many units.
Only suggest products that appear in the product details. Prefer items at or below their low-stock threshold
and items that sell quickly.

Recent sales (one line per sale item):
{{.SalesData}}

Product details:
{{.ProductDetails}}

Respond with JSON only, shaped exactly as:
{"itemsToReorder":[{"productName":"string","quantity":1,"reason":"string"}]}
Return {"itemsToReorder":[]} when nothing needs reordering.`))

var reportPrompt = template.Must(template.New("report").Parse(`You write a concise daily business report email for {{if .BusinessName}}{{.BusinessName}}{{else}}a small retail shop{{end}}.
Summarise sales performance, highlight best sellers, and list stock that needs attention.

Sales data:
{{.SalesData}}

Low stock items:
{{.LowStockItems}}

Out of stock items:
{{.OutOfStockItems}}

Return a single self-contained HTML document with inline styles suitable for an email client.
Do not wrap the HTML in markdown code fences.`))

// Flows runs the prompt flows against a Generator. Each flow makes a single attempt.
type Flows struct {
	gen Generator
}

// NewFlows constructs Flows.
func NewFlows(gen Generator) *Flows {
	return &Flows{gen: gen}
}

// SuggestReorders asks the model which products to restock.
func (f *Flows) SuggestReorders(ctx context.Context, in ReorderInput) (ReorderSuggestion, error) {
	const msg = "failed to generate reorder suggestions"
	prompt, err := render(reorderPrompt, in)
	if err != nil {
		return ReorderSuggestion{}, &FlowError{Flow: "reorder", Message: msg, Err: err}
	}
	raw, err := f.gen.Generate(ctx, prompt, true)
	if err != nil {
		return ReorderSuggestion{}, &FlowError{Flow: "reorder", Message: msg, Err: err}
	}
	var out ReorderSuggestion
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		return ReorderSuggestion{}, &FlowError{Flow: "reorder", Message: msg, Err: fmt.Errorf("decode model output: %w", err)}
	}
	if err := shared.Validate(out); err != nil {
		return ReorderSuggestion{}, &FlowError{Flow: "reorder", Message: msg, Err: fmt.Errorf("model output: %s", err.Error())}
	}
	if out.ItemsToReorder == nil {
		out.ItemsToReorder = []ReorderItem{}
	}
	return out, nil
}

// GenerateReportHTML asks the model for the report email body.
func (f *Flows) GenerateReportHTML(ctx context.Context, in ReportInput) (string, error) {
	const msg = "failed to generate email report"
	prompt, err := render(reportPrompt, in)
	if err != nil {
		return "", &FlowError{Flow: "report", Message: msg, Err: err}
	}
	raw, err := f.gen.Generate(ctx, prompt, false)
	if err != nil {
		return "", &FlowError{Flow: "report", Message: msg, Err: err}
	}
	html := stripFences(raw)
	if !strings.Contains(html, "<") {
		return "", &FlowError{Flow: "report", Message: msg, Err: fmt.Errorf("model output is not HTML")}
	}
	return html, nil
}

func render(t *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// stripFences removes a surrounding markdown code fence if the model added one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

package ai

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/infoagent/infoagent/store"
)

// Extraction holds the structured information extracted from a text.
type Extraction struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Summary     string   `json:"summary"`
	Categories  []string `json:"categories"`
	KeyFacts    []string `json:"key_facts"`
	DatesTimes  []string `json:"dates_times"`
	Entities    struct {
		People        []string `json:"people"`
		Places        []string `json:"places"`
		Organizations []string `json:"organizations"`
	} `json:"entities"`
	ActionItems   []string       `json:"action_items"`
	DynamicFields map[string]any `json:"dynamic_fields"`
}

// Attributes flattens the extraction into searchable memory attributes.
// Entities are flattened to top-level keys and the first category doubles as
// the primary "category" attribute.
func (e *Extraction) Attributes() store.Attributes {
	attrs := store.Attributes{}
	if e.Description != "" {
		attrs["description"] = store.StringValue(e.Description)
	}
	if len(e.Categories) > 0 {
		attrs["categories"] = store.ListValue(e.Categories...)
		attrs["category"] = store.StringValue(e.Categories[0])
	}
	if len(e.KeyFacts) > 0 {
		attrs["key_facts"] = store.ListValue(e.KeyFacts...)
	}
	if len(e.DatesTimes) > 0 {
		attrs["dates_times"] = store.ListValue(e.DatesTimes...)
	}
	if len(e.Entities.People) > 0 {
		attrs["people"] = store.ListValue(e.Entities.People...)
	}
	if len(e.Entities.Places) > 0 {
		attrs["places"] = store.ListValue(e.Entities.Places...)
	}
	if len(e.Entities.Organizations) > 0 {
		attrs["organizations"] = store.ListValue(e.Entities.Organizations...)
	}
	if len(e.ActionItems) > 0 {
		attrs["action_items"] = store.ListValue(e.ActionItems...)
	}
	for key, value := range e.DynamicFields {
		if value == nil {
			continue
		}
		if attr, ok := store.AttributeFromAny(value); ok {
			attrs[key] = attr
		}
	}
	return attrs
}

// MemoryProcessor turns raw text into extracted metadata through the LLM.
type MemoryProcessor struct {
	llm    LLMService
	logger *slog.Logger
}

func NewMemoryProcessor(llm LLMService, logger *slog.Logger) *MemoryProcessor {
	return &MemoryProcessor{llm: llm, logger: logger}
}

// Process runs the unified extraction prompt against the LLM and parses the
// JSON response.
func (p *MemoryProcessor) Process(ctx context.Context, text string) (*Extraction, error) {
	p.logger.Debug("extracting memory metadata", "chars", len(text))

	response, err := p.llm.Chat(ctx, []Message{
		{Role: "user", Content: extractionPrompt(text)},
	})
	if err != nil {
		return nil, errors.Wrap(err, "extraction chat completion")
	}

	extraction := &Extraction{}
	if err := json.Unmarshal([]byte(extractJSON(response)), extraction); err != nil {
		p.logger.Warn("failed to parse extraction response", "error", err)
		return nil, errors.Wrap(err, "parse extraction response")
	}

	p.logger.Debug("extracted memory metadata", "title", extraction.Title, "categories", len(extraction.Categories))
	return extraction, nil
}

// extractJSON strips markdown code fences and surrounding prose, leaving the
// first JSON object in the response. Models occasionally wrap their output
// despite instructions.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end < start {
		return response
	}
	return response[start : end+1]
}

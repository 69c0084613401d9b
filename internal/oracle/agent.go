package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JaimeStill/go-agents/pkg/agent"
	gaconfig "github.com/JaimeStill/go-agents/pkg/config"

	"github.com/JaimeStill/pairwise/internal/records"
	"github.com/JaimeStill/pairwise/pkg/formatting"
)

type classifyResponse struct {
	Label string `json:"label"`
}

// Agent is an Oracle backed by a go-agents chat model. A fresh agent is
// created per call so concurrent calls share no client state.
type Agent struct {
	cfg    gaconfig.AgentConfig
	logger *slog.Logger
}

// NewAgent validates cfg by constructing an agent once and returns the
// Oracle.
func NewAgent(cfg *gaconfig.AgentConfig, logger *slog.Logger) (*Agent, error) {
	if _, err := agent.New(cfg); err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	return &Agent{
		cfg:    *cfg,
		logger: logger.With("system", "oracle"),
	}, nil
}

// Classify asks the model for a single label. The reply is read as
// `{"label": "..."}`, optionally fenced, and falls back to treating the
// whole reply as the label.
func (o *Agent) Classify(ctx context.Context, text string) (records.Label, error) {
	a, err := agent.New(&o.cfg)
	if err != nil {
		return "", fmt.Errorf("create agent: %w", err)
	}

	resp, err := a.Chat(ctx, ClassifyPrompt(text))
	if err != nil {
		return "", fmt.Errorf("chat call: %w", err)
	}

	content := resp.Content()
	if parsed, err := formatting.Parse[classifyResponse](content); err == nil && parsed.Label != "" {
		return normalize(parsed.Label)
	}

	o.logger.DebugContext(ctx, "unstructured classification reply", "content", content)
	return normalize(content)
}

// Complete sends prompt with input rendered as JSON beneath it.
func (o *Agent) Complete(ctx context.Context, prompt string, input any) (string, error) {
	a, err := agent.New(&o.cfg)
	if err != nil {
		return "", fmt.Errorf("create agent: %w", err)
	}

	if input != nil {
		data, err := json.MarshalIndent(input, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal context: %w", err)
		}
		prompt = prompt + "\n\nContext:\n" + string(data)
	}

	resp, err := a.Chat(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("chat call: %w", err)
	}
	return strings.TrimSpace(resp.Content()), nil
}

// ClassifyPrompt renders the classification instruction for text.
func ClassifyPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Classify the question below into exactly one category by what kind of answer it seeks.\n\n")
	b.WriteString("Categories:\n")
	for _, l := range records.Vocabulary {
		fmt.Fprintf(&b, "- %s: %s\n", l, l.Name())
	}
	b.WriteString("\nRespond with JSON only: {\"label\": \"<CODE>\"}\n\n")
	b.WriteString("Question: ")
	b.WriteString(text)
	return b.String()
}

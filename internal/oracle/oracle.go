// Package oracle defines the external classification and completion
// service and the implementations the engine can run against.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gaconfig "github.com/JaimeStill/go-agents/pkg/config"

	"github.com/JaimeStill/pairwise/internal/records"
)

// Oracle kinds accepted by configuration.
const (
	KindAgent     = "agent"
	KindHeuristic = "heuristic"
	KindLookup    = "lookup"
)

var (
	// ErrInvalidResponse indicates an oracle reply that could not be mapped
	// onto the label vocabulary.
	ErrInvalidResponse = errors.New("invalid oracle response")
	// ErrUnknownText indicates a lookup oracle was asked about text it has
	// no label for.
	ErrUnknownText = errors.New("text not in lookup table")
	// ErrUnknownKind indicates an unrecognized oracle kind.
	ErrUnknownKind = errors.New("unknown oracle kind")
)

// Oracle is the black-box service that labels units and answers free-form
// prompts. Implementations hold no state between calls and must honour ctx
// cancellation.
type Oracle interface {
	Classify(ctx context.Context, text string) (records.Label, error)
	Complete(ctx context.Context, prompt string, input any) (string, error)
}

// Func adapts a classification function into an Oracle. Complete returns an
// empty string.
type Func func(ctx context.Context, text string) (records.Label, error)

func (f Func) Classify(ctx context.Context, text string) (records.Label, error) {
	return f(ctx, text)
}

func (f Func) Complete(ctx context.Context, prompt string, _ any) (string, error) {
	return "", ctx.Err()
}

func normalize(raw string) (records.Label, error) {
	label, err := records.ParseLabel(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return label, nil
}

// New builds the Oracle for kind. agentCfg is used by the agent oracle and
// lookupPath by the lookup oracle.
func New(kind string, agentCfg *gaconfig.AgentConfig, lookupPath string, logger *slog.Logger) (Oracle, error) {
	switch kind {
	case KindAgent:
		return NewAgent(agentCfg, logger)
	case KindHeuristic:
		return Heuristic{}, nil
	case KindLookup:
		return LoadLookup(lookupPath)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Package report drives the batched model conversation that turns
// normalized issue rows into report text.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/allyant/audit-reporter/internal/batching"
	"github.com/allyant/audit-reporter/internal/llm"
	"github.com/allyant/audit-reporter/internal/types"
)

// ErrThrottled indicates the backend kept rate-limiting past the retry
// budget. Surfaced to clients as "try again later".
var ErrThrottled = errors.New("model backend throttled, please retry later")

// NoValidResponse is substituted for a batch whose response carried no
// usable content. It keeps the batch loop going instead of aborting.
const NoValidResponse = "No valid response from model."

// Config holds the pacing and retry knobs for the batch loop.
type Config struct {
	// TokenBudget bounds the estimated size of each batch.
	TokenBudget float64
	// MaxAttempts bounds rate-limit retries per batch, initial send included.
	MaxAttempts int
	// InitialBackoff is the wait after the first rate-limit rejection.
	InitialBackoff time.Duration
	// BackoffFactor multiplies the wait after each further rejection.
	BackoffFactor float64
	// PacingDelay is inserted after every successful send to stay under
	// backend throughput ceilings.
	PacingDelay time.Duration
}

// DefaultConfig returns the production pacing parameters.
func DefaultConfig() Config {
	return Config{
		TokenBudget:    batching.DefaultTokenBudget,
		MaxAttempts:    6,
		InitialBackoff: 20 * time.Second,
		BackoffFactor:  2,
		PacingDelay:    time.Second,
	}
}

// Generator sends issue batches to the model backend and assembles the
// combined report text.
type Generator struct {
	client llm.Client
	config Config
	log    *zap.Logger
}

// NewGenerator creates a Generator over the given model client.
func NewGenerator(client llm.Client, config Config, log *zap.Logger) *Generator {
	if config.TokenBudget <= 0 {
		config.TokenBudget = batching.DefaultTokenBudget
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = DefaultConfig().InitialBackoff
	}
	if config.BackoffFactor < 1 {
		config.BackoffFactor = DefaultConfig().BackoffFactor
	}
	return &Generator{client: client, config: config, log: log}
}

// Generate batches rows, sends each batch sequentially with the
// instruction prompt for tool, and joins the responses in input order.
// Batches are never sent concurrently; response ordering must match batch
// ordering so that downstream category order is deterministic.
func (g *Generator) Generate(ctx context.Context, rows []types.IssueRow, tool types.ToolType) (string, error) {
	instructions, err := instructionsFor(tool)
	if err != nil {
		return "", err
	}

	batches := batching.Pack(rows, g.config.TokenBudget)
	g.log.Info("sending issue batches to model backend",
		zap.Int("rows", len(rows)),
		zap.Int("batches", len(batches)),
		zap.String("tool", string(tool)))

	responses := make([]string, 0, len(batches))
	for i, batch := range batches {
		text, err := g.sendBatch(ctx, instructions, batch)
		if err != nil {
			return "", fmt.Errorf("batch %d/%d failed: %w", i+1, len(batches), err)
		}
		responses = append(responses, text)

		if err := sleepCtx(ctx, g.config.PacingDelay); err != nil {
			return "", err
		}
	}

	return strings.Join(responses, "\n\n"), nil
}

// sendBatch sends one batch, retrying rate-limit rejections with bounded
// exponential backoff. Non-rate-limit errors abort immediately; an empty
// response degrades to the sentinel string.
func (g *Generator) sendBatch(ctx context.Context, instructions string, batch []types.IssueRow) (string, error) {
	payload, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("failed to serialize batch: %w", err)
	}

	backoff := g.config.InitialBackoff
	for attempt := 1; ; attempt++ {
		text, err := g.client.GenerateContent(ctx, instructions, string(payload))
		if err == nil {
			return text, nil
		}
		if errors.Is(err, llm.ErrEmptyResponse) {
			g.log.Warn("no valid response from model backend, substituting sentinel",
				zap.Int("batch_rows", len(batch)))
			return NoValidResponse, nil
		}
		if !llm.IsRateLimit(err) {
			return "", err
		}
		if attempt >= g.config.MaxAttempts {
			g.log.Error("rate-limit retries exhausted",
				zap.Int("attempts", attempt),
				zap.Error(err))
			return "", ErrThrottled
		}

		g.log.Warn("rate limit exceeded, retrying after delay",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff))
		if err := sleepCtx(ctx, backoff); err != nil {
			return "", err
		}
		backoff = time.Duration(float64(backoff) * g.config.BackoffFactor)
	}
}

// instructionsFor returns the fixed prompt for a tool type.
func instructionsFor(tool types.ToolType) (string, error) {
	switch tool {
	case types.ToolVPAT:
		return vpatInstructions, nil
	case types.ToolSummary, "":
		return summaryInstructions, nil
	default:
		return "", fmt.Errorf("unknown tool type %q", tool)
	}
}

// sleepCtx sleeps for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package council

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/llmcouncil/llm"
	"github.com/BaSui01/llmcouncil/llm/providers/openrouter"
	"github.com/BaSui01/llmcouncil/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// SynthesisFailedMessage is the stage three response when the chairman fails.
	SynthesisFailedMessage = "Error: Unable to generate final synthesis."
	// AllModelsFailedMessage is the stage three response when stage one is empty.
	AllModelsFailedMessage = "All models failed to respond. Please try again."
	// ErrorModel marks a synthetic stage three result.
	ErrorModel = "error"
)

// Config describes the council membership and query budget.
type Config struct {
	Models        []string
	ChairmanModel string
	TitleModel    string
	// QueryTimeout bounds each member/chairman query. Zero uses the provider default.
	QueryTimeout time.Duration
	TitleTimeout time.Duration
	// MaxParallel caps concurrent member queries per stage. Zero means unbounded.
	MaxParallel int
}

// DefaultConfig returns the default OpenRouter council.
func DefaultConfig() Config {
	return Config{
		Models:        append([]string(nil), openrouter.DefaultCouncilModels...),
		ChairmanModel: openrouter.DefaultChairmanModel,
		TitleModel:    openrouter.DefaultTitleModel,
		TitleTimeout:  30 * time.Second,
	}
}

// Validate checks the membership.
func (c Config) Validate() error {
	if len(c.Models) == 0 {
		return errors.New("council needs at least one model")
	}
	if len(c.Models) > 26 {
		return fmt.Errorf("council supports at most 26 models, got %d", len(c.Models))
	}
	for i, m := range c.Models {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("council model %d is empty", i)
		}
	}
	if strings.TrimSpace(c.ChairmanModel) == "" {
		return errors.New("chairman model is required")
	}
	if strings.TrimSpace(c.TitleModel) == "" {
		return errors.New("title model is required")
	}
	return nil
}

// StageObserver receives per-stage outcomes. metrics.Collector implements it.
type StageObserver interface {
	ObserveStage(stage string, duration time.Duration, succeeded, failed int)
}

// Council runs the three-stage deliberation against a Completer.
type Council struct {
	cfg      Config
	client   llm.Completer
	observer StageObserver
	tracer   trace.Tracer
	logger   *zap.Logger
}

// New creates a Council. observer may be nil.
func New(cfg Config, client llm.Completer, observer StageObserver, logger *zap.Logger) (*Council, error) {
	if client == nil {
		return nil, errors.New("council requires a completer")
	}
	if cfg.TitleTimeout == 0 {
		cfg.TitleTimeout = 30 * time.Second
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Council{
		cfg:      cfg,
		client:   client,
		observer: observer,
		tracer:   otel.Tracer("github.com/BaSui01/llmcouncil/internal/council"),
		logger:   logger.With(zap.String("component", "council")),
	}, nil
}

// Config returns the council configuration.
func (c *Council) Config() Config { return c.cfg }

type memberReply struct {
	model string
	text  string
	err   error
}

// queryAll sends the same messages to every council member concurrently.
// Replies keep council order. A member's failure never cancels the others.
func (c *Council) queryAll(ctx context.Context, messages []llm.Message) []memberReply {
	replies := make([]memberReply, len(c.cfg.Models))

	var g errgroup.Group
	if c.cfg.MaxParallel > 0 {
		g.SetLimit(c.cfg.MaxParallel)
	}
	for i, model := range c.cfg.Models {
		g.Go(func() error {
			reply, err := openrouter.QueryModel(ctx, c.client, model, messages, c.cfg.QueryTimeout)
			replies[i] = memberReply{model: model, err: err}
			if err == nil {
				replies[i].text = reply.Content
			}
			return nil
		})
	}
	_ = g.Wait()
	return replies
}

func (c *Council) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int("council.size", len(c.cfg.Models)),
	))
}

func (c *Council) observe(stage string, start time.Time, ok, failed int) {
	if c.observer != nil {
		c.observer.ObserveStage(stage, time.Since(start), ok, failed)
	}
}

// ===========================================================================
// 🎯 三个阶段
// ===========================================================================

// CollectResponses is stage one: every member answers the query on its own.
// Members that fail or return empty content are left out.
func (c *Council) CollectResponses(ctx context.Context, query string) []types.StageOneResult {
	ctx, span := c.startSpan(ctx, "council.stage1")
	defer span.End()
	start := time.Now()

	replies := c.queryAll(ctx, []llm.Message{llm.UserMessage(query)})

	results := make([]types.StageOneResult, 0, len(replies))
	for _, r := range replies {
		if r.err != nil || r.text == "" {
			c.logger.Warn("council member produced no answer",
				zap.String("model", r.model),
				zap.Error(r.err),
			)
			continue
		}
		results = append(results, types.StageOneResult{Model: r.model, Response: r.text})
	}

	failed := len(replies) - len(results)
	span.SetAttributes(attribute.Int("council.responses", len(results)))
	if len(results) == 0 {
		span.SetStatus(codes.Error, "no council member responded")
	}
	c.observe("stage1", start, len(results), failed)
	return results
}

// CollectRankings is stage two: every member evaluates the anonymized stage
// one answers. It returns the rankings and the label → model mapping.
func (c *Council) CollectRankings(ctx context.Context, query string, stage1 []types.StageOneResult) ([]types.StageTwoResult, map[string]string) {
	ctx, span := c.startSpan(ctx, "council.stage2")
	defer span.End()
	start := time.Now()

	labelToModel := make(map[string]string, len(stage1))
	for i, r := range stage1 {
		labelToModel[Label(i)] = r.Model
	}

	replies := c.queryAll(ctx, []llm.Message{llm.UserMessage(buildRankingPrompt(query, stage1))})

	results := make([]types.StageTwoResult, 0, len(replies))
	for _, r := range replies {
		if r.err != nil || r.text == "" {
			c.logger.Warn("council member produced no ranking",
				zap.String("model", r.model),
				zap.Error(r.err),
			)
			continue
		}
		results = append(results, types.StageTwoResult{
			Model:         r.model,
			Ranking:       r.text,
			ParsedRanking: ParseRanking(r.text),
		})
	}

	span.SetAttributes(attribute.Int("council.rankings", len(results)))
	c.observe("stage2", start, len(results), len(replies)-len(results))
	return results, labelToModel
}

// SynthesizeFinal is stage three: the chairman writes the final answer.
// A chairman failure yields SynthesisFailedMessage instead of an error.
func (c *Council) SynthesizeFinal(ctx context.Context, query string, stage1 []types.StageOneResult, stage2 []types.StageTwoResult) types.StageThreeResult {
	ctx, span := c.startSpan(ctx, "council.stage3")
	defer span.End()
	span.SetAttributes(attribute.String("council.chairman", c.cfg.ChairmanModel))
	start := time.Now()

	prompt := buildChairmanPrompt(query, stage1, stage2)
	reply, err := openrouter.QueryModel(ctx, c.client, c.cfg.ChairmanModel, []llm.Message{llm.UserMessage(prompt)}, c.cfg.QueryTimeout)
	if err != nil {
		c.logger.Error("chairman synthesis failed",
			zap.String("model", c.cfg.ChairmanModel),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "chairman failed")
		c.observe("stage3", start, 0, 1)
		return types.StageThreeResult{Model: c.cfg.ChairmanModel, Response: SynthesisFailedMessage}
	}

	c.observe("stage3", start, 1, 0)
	return types.StageThreeResult{Model: c.cfg.ChairmanModel, Response: reply.Content}
}

// GenerateTitle asks the title model for a 3-5 word title. Any failure falls
// back to types.DefaultConversationTitle.
func (c *Council) GenerateTitle(ctx context.Context, query string) string {
	ctx, span := c.startSpan(ctx, "council.title")
	defer span.End()

	reply, err := openrouter.QueryModel(ctx, c.client, c.cfg.TitleModel, []llm.Message{llm.UserMessage(buildTitlePrompt(query))}, c.cfg.TitleTimeout)
	if err != nil {
		c.logger.Warn("title generation failed", zap.String("model", c.cfg.TitleModel), zap.Error(err))
		return types.DefaultConversationTitle
	}
	title := CleanTitle(reply.Content)
	if title == "" {
		return types.DefaultConversationTitle
	}
	return title
}

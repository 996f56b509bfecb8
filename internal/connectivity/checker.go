package connectivity

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BaSui01/llmcouncil/llm"
	"github.com/BaSui01/llmcouncil/llm/providers/openrouter"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds each probe.
	DefaultTimeout = 10 * time.Second
	// ProbePrompt is the single user message sent to every target.
	ProbePrompt = "Hello"

	keyPrefixLen = 10
)

// Outcome classifies a probe.
type Outcome int

const (
	Responded Outcome = iota
	NoResponse
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Responded:
		return "responded"
	case NoResponse:
		return "no_response"
	default:
		return "failed"
	}
}

// Target is one model to probe. Name is what the report prints.
type Target struct {
	Model  string
	Name   string
	Header string
}

// Result is the outcome of probing one target.
type Result struct {
	Target   Target
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// Report collects every probe result.
type Report struct {
	KeyPresent bool
	Results    []Result
}

// Failures counts probes that did not respond.
func (r Report) Failures() int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome != Responded {
			n++
		}
	}
	return n
}

// OK reports whether every probe responded.
func (r Report) OK() bool { return r.Failures() == 0 }

// Options selects the probe targets.
type Options struct {
	TitleModel    string
	CouncilModels []string
	// All probes every council model instead of only the first.
	All     bool
	Timeout time.Duration
}

// Checker runs the router connectivity smoke test and prints a
// human-readable report.
type Checker struct {
	client llm.Completer
	opts   Options
	out    io.Writer
	logger *zap.Logger
}

// NewChecker creates a Checker writing to out.
func NewChecker(client llm.Completer, opts Options, out io.Writer, logger *zap.Logger) *Checker {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.TitleModel == "" {
		opts.TitleModel = openrouter.DefaultTitleModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		client: client,
		opts:   opts,
		out:    out,
		logger: logger.With(zap.String("component", "connectivity")),
	}
}

// Targets lists the probes in execution order: the title model, then the
// first council model (or all of them with Options.All).
func (c *Checker) Targets() []Target {
	short := ShortName(c.opts.TitleModel)
	targets := []Target{{
		Model:  c.opts.TitleModel,
		Name:   short,
		Header: fmt.Sprintf("Testing connection with %s (Title generator)...", short),
	}}

	for i, m := range c.opts.CouncilModels {
		if i > 0 && !c.opts.All {
			break
		}
		header := "Testing first council model: " + m
		if i > 0 {
			header = fmt.Sprintf("Testing council model %d/%d: %s", i+1, len(c.opts.CouncilModels), m)
		}
		targets = append(targets, Target{Model: m, Name: m, Header: header})
	}
	return targets
}

// Run prints the API key status and probes every target in order.
// A failing probe never stops the next one.
func (c *Checker) Run(ctx context.Context, apiKey string) Report {
	report := Report{KeyPresent: apiKey != ""}
	c.ReportAPIKey(apiKey)

	for _, t := range c.Targets() {
		c.printf("\n%s\n", t.Header)
		res := c.Probe(ctx, t)
		c.printResult(res)
		report.Results = append(report.Results, res)
	}
	return report
}

// ReportAPIKey prints whether a key is present and its first characters.
func (c *Checker) ReportAPIKey(apiKey string) {
	c.printf("API Key present: %t\n", apiKey != "")
	if apiKey != "" {
		prefix := apiKey
		if len(prefix) > keyPrefixLen {
			prefix = prefix[:keyPrefixLen]
		}
		c.printf("API Key start: %s...\n", prefix)
	}
}

// Probe sends ProbePrompt to one target.
func (c *Checker) Probe(ctx context.Context, t Target) Result {
	start := time.Now()
	reply, err := openrouter.QueryModel(ctx, c.client, t.Model, []llm.Message{llm.UserMessage(ProbePrompt)}, c.opts.Timeout)
	res := Result{Target: t, Duration: time.Since(start)}

	switch {
	case err != nil:
		res.Outcome = Failed
		res.Err = err
	case strings.TrimSpace(reply.Content) == "":
		res.Outcome = NoResponse
	default:
		res.Outcome = Responded
	}

	c.logger.Debug("probe finished",
		zap.String("model", t.Model),
		zap.Stringer("outcome", res.Outcome),
		zap.Duration("duration", res.Duration),
		zap.Error(err),
	)
	return res
}

func (c *Checker) printResult(res Result) {
	switch res.Outcome {
	case Responded:
		c.printf("✓ %s responded\n", res.Target.Name)
	case NoResponse:
		c.printf("✗ %s returned no response\n", res.Target.Name)
	default:
		c.printf("✗ %s failed: %v\n", res.Target.Name, res.Err)
	}
}

func (c *Checker) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// ShortName drops the vendor prefix of a routed model id.
func ShortName(model string) string {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}

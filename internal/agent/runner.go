package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"omnigate/internal/domain"
	"omnigate/internal/metrics"
	"omnigate/internal/tool"
)

const (
	defaultMaxRounds       = 8
	defaultMaxToolCalls    = 20
	defaultMaxParallelTool = 4
	defaultTemperature     = 0.7

	toolLimitResult = "Tool call limit reached. Answer with the information you already have."
	roundLimitReply = "I wasn't able to finish working through that. Could you try asking in a simpler way?"
)

// Runner drives the tool-calling loop: call the model, execute requested
// tools, feed results back, repeat until the model answers in plain text.
// Two independent caps bound the loop: a round cap on model calls and a
// total cap on tool executions per inbound message.
type Runner struct {
	tools        *tool.Registry
	metrics      *metrics.Gateway
	logger       *slog.Logger
	maxRounds    int
	maxToolCalls int
}

type RunnerConfig struct {
	Tools        *tool.Registry
	Metrics      *metrics.Gateway
	Logger       *slog.Logger
	MaxRounds    int
	MaxToolCalls int
}

func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = defaultMaxRounds
	}
	if cfg.MaxToolCalls <= 0 {
		cfg.MaxToolCalls = defaultMaxToolCalls
	}
	return &Runner{
		tools:        cfg.Tools,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		maxRounds:    cfg.MaxRounds,
		maxToolCalls: cfg.MaxToolCalls,
	}
}

// RunInput is one agent invocation. Messages must already contain the
// system prompt and conversation history with the new user message last.
type RunInput struct {
	Provider   domain.Provider
	Model      string
	Messages   []domain.Message
	Invocation *domain.ToolInvocation

	// OnRound, when set, is called before every model round. Connectors
	// use it to refresh typing indicators during long tool chains.
	OnRound func()
}

type RunResult struct {
	Reply     string
	ToolsUsed []string
	Rounds    int
	Usage     domain.Usage
}

// Run executes the loop. A provider error aborts the whole run; a tool
// error does not, its message is fed back to the model as the tool result.
func (r *Runner) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	messages := in.Messages

	var toolDefs []domain.ToolDefinition
	if r.tools != nil && in.Provider.SupportsToolCalling() {
		toolDefs = r.tools.Definitions()
	}

	toolSem := make(chan struct{}, defaultMaxParallelTool)

	res := &RunResult{}
	totalCalls := 0

	for round := 0; round < r.maxRounds; round++ {
		res.Rounds = round + 1
		if in.OnRound != nil {
			in.OnRound()
		}

		start := time.Now()
		if r.metrics != nil {
			r.metrics.ProviderRequests.Inc()
		}
		resp, err := in.Provider.Chat(ctx, domain.ChatRequest{
			Messages:    messages,
			Tools:       toolDefs,
			Model:       in.Model,
			Temperature: defaultTemperature,
		})
		if r.metrics != nil {
			r.metrics.ProviderLatency.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			if r.metrics != nil {
				r.metrics.ProviderErrors.Inc()
			}
			return nil, fmt.Errorf("provider %s: %w", in.Provider.Name(), err)
		}
		res.Usage.PromptTokens += resp.Usage.PromptTokens
		res.Usage.CompletionTokens += resp.Usage.CompletionTokens
		res.Usage.TotalTokens += resp.Usage.TotalTokens

		if !resp.HasToolCalls() {
			res.Reply = resp.Content
			return res, nil
		}

		messages = append(messages, domain.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		results := make([]string, len(resp.ToolCalls))
		var wg sync.WaitGroup
		for i, tc := range resp.ToolCalls {
			res.ToolsUsed = append(res.ToolsUsed, tc.Name)

			// Over the total cap the call is not executed; the model gets a
			// synthetic result telling it to wrap up.
			if totalCalls >= r.maxToolCalls {
				results[i] = toolLimitResult
				r.logger.Warn("tool call budget exhausted", "tool", tc.Name, "total", totalCalls)
				continue
			}
			totalCalls++

			wg.Add(1)
			go func(idx int, tc domain.ToolCall) {
				defer wg.Done()
				toolSem <- struct{}{}
				defer func() { <-toolSem }()

				results[idx] = r.executeTool(ctx, tc, in.Invocation)
			}(i, tc)
		}
		wg.Wait()

		for i, tc := range resp.ToolCalls {
			messages = append(messages, domain.Message{
				Role:       "tool",
				Content:    results[i],
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
			})
		}
	}

	r.logger.Warn("agent round cap reached", "rounds", r.maxRounds, "toolCalls", totalCalls)
	res.Reply = roundLimitReply
	return res, nil
}

func (r *Runner) executeTool(ctx context.Context, tc domain.ToolCall, inv *domain.ToolInvocation) string {
	r.logger.Info("executing tool", "tool", tc.Name)
	if r.metrics != nil {
		r.metrics.ToolExecutions.Inc()
	}

	result, err := r.tools.Execute(ctx, tc.Name, tc.Arguments, inv)
	if err != nil {
		if r.metrics != nil {
			r.metrics.ToolErrors.Inc()
		}
		r.logger.Warn("tool failed", "tool", tc.Name, "err", err)
		return fmt.Sprintf("Error executing tool %s: %s", tc.Name, err.Error())
	}

	r.logger.Debug("tool completed", "tool", tc.Name, "result_len", len(result))
	return result
}

package pipeline

import (
	"context"
	"time"

	"omnigate/internal/domain"
)

// Context is the shared mutable state one inbound message carries through
// the stage chain. Each stage owns its fields and leaves the rest alone.
type Context struct {
	Ctx context.Context

	// Identity of the inbound message.
	Owner    string
	Channel  string
	Mode     domain.ConnectionMode
	Peer     string
	PeerName string

	// Incoming is the raw text; Envelope is the annotated form the model
	// sees (set by the envelope stage).
	Incoming   string
	Envelope   string
	ReceivedAt time.Time

	// Resolved by the session and history stages.
	Conversation *domain.Conversation
	History      []domain.MessageRecord

	// Accumulated context for prompt assembly.
	Previews []string
	Facts    []domain.Fact
	News     string

	// Prompt under assembly and routing decisions.
	Messages   []domain.Message
	Intent     string // chitchat | question | task | command
	Complexity string // simple | standard | complex
	Provider   domain.Provider
	Model      string

	// Produced by the ai stage. Images are attachments generated by
	// tools during the run; the connector delivers them after the reply.
	Reply     string
	Images    []domain.ImageAttachment
	ToolsUsed []string
	Usage     domain.Usage

	// Formatted guards the per-platform formatter: applied at most once.
	Formatted bool

	// Typing, when set by the connector, refreshes the platform typing
	// indicator. Invocation is handed to tools that need gateway state.
	Typing     func()
	Invocation *domain.ToolInvocation
}

// Stage processes the context and calls next to continue the chain.
// Returning without calling next short-circuits the remaining stages;
// returning an error aborts the run.
type Stage func(c *Context, next func() error) error

// Pipeline is an ordered stage chain. Order is fixed at construction;
// stages are independently composable.
type Pipeline struct {
	stages []Stage
}

func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Use appends a stage. Only meaningful before the first Run.
func (p *Pipeline) Use(s Stage) {
	p.stages = append(p.stages, s)
}

// Run executes the chain front to back.
func (p *Pipeline) Run(c *Context) error {
	var exec func(i int) error
	exec = func(i int) error {
		if i >= len(p.stages) {
			return nil
		}
		return p.stages[i](c, func() error { return exec(i + 1) })
	}
	return exec(0)
}

package tool

import (
	"context"
	"fmt"
	"strings"

	"omnigate/internal/domain"
)

// RememberTool stores a long-term fact for the current owner.
type RememberTool struct{}

func NewRememberTool() *RememberTool { return &RememberTool{} }

func (t *RememberTool) Name() string { return "remember" }
func (t *RememberTool) Description() string {
	return "Store a fact about the user for future conversations, e.g. preferences, names, recurring topics."
}
func (t *RememberTool) Parameters() map[string]any {
	return Parameters(
		map[string]Param{
			"fact":     {Type: "string", Description: "The fact to remember, phrased as a standalone sentence"},
			"category": {Type: "string", Description: "Optional category such as preference, personal, work"},
		},
		[]string{"fact"},
	)
}

func (t *RememberTool) Execute(ctx context.Context, args map[string]any, inv *domain.ToolInvocation) (string, error) {
	if inv == nil || inv.Store == nil {
		return "", fmt.Errorf("remember: no store available")
	}
	fact := strings.TrimSpace(ArgString(args, "fact"))
	if fact == "" {
		return "", fmt.Errorf("missing argument: fact")
	}
	err := inv.Store.SaveFact(ctx, domain.Fact{
		Owner:    inv.Owner,
		Content:  fact,
		Category: ArgString(args, "category"),
	})
	if err != nil {
		return "", fmt.Errorf("save fact: %w", err)
	}
	return "Remembered: " + fact, nil
}

// RecallTool searches stored facts for the current owner.
type RecallTool struct{}

func NewRecallTool() *RecallTool { return &RecallTool{} }

func (t *RecallTool) Name() string { return "recall" }
func (t *RecallTool) Description() string {
	return "Search previously remembered facts about the user."
}
func (t *RecallTool) Parameters() map[string]any {
	return Parameters(
		map[string]Param{
			"query": {Type: "string", Description: "Keywords to search the memory for"},
		},
		nil,
	)
}

func (t *RecallTool) Execute(ctx context.Context, args map[string]any, inv *domain.ToolInvocation) (string, error) {
	if inv == nil || inv.Store == nil {
		return "", fmt.Errorf("recall: no store available")
	}
	facts, err := inv.Store.SearchFacts(ctx, inv.Owner, ArgString(args, "query"), 10)
	if err != nil {
		return "", fmt.Errorf("search facts: %w", err)
	}
	if len(facts) == 0 {
		return "No matching facts stored.", nil
	}
	var sb strings.Builder
	ids := make([]int64, 0, len(facts))
	for _, f := range facts {
		sb.WriteString("- " + f.Content + "\n")
		ids = append(ids, f.ID)
	}
	_ = inv.Store.TouchFacts(ctx, ids)
	return sb.String(), nil
}

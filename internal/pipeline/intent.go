package pipeline

import (
	"log/slog"
	"strings"
)

// Intent labels persisted on message records and used for model routing.
const (
	IntentChitchat = "chitchat"
	IntentQuestion = "question"
	IntentTask     = "task"
	IntentCommand  = "command"

	ComplexitySimple   = "simple"
	ComplexityStandard = "standard"
	ComplexityComplex  = "complex"
)

var chitchatPhrases = []string{
	"hi", "hello", "hey", "yo", "sup", "good morning", "good afternoon",
	"good evening", "good night", "how are you", "how's it going",
	"thanks", "thank you", "thx", "ok", "okay", "cool", "nice", "lol",
	"bye", "see you", "goodbye",
}

var taskVerbs = []string{
	"remind", "schedule", "send", "forward", "calculate", "compute",
	"search", "find", "look up", "fetch", "summarize", "translate",
	"write", "draft", "remember", "book", "set ",
}

// ModelPicker resolves the low-cost model for a provider. Satisfied by
// provider.Factory.
type ModelPicker interface {
	CheapModel(name string) string
}

// IntentStage classifies the message and routes simple chitchat to the
// cheapest configured model. Classification is keyword-based on purpose:
// it must cost nothing before the real provider call.
func IntentStage(picker ModelPicker, logger *slog.Logger) Stage {
	return func(c *Context, next func() error) error {
		c.Intent, c.Complexity = classify(c.Incoming)

		if c.Intent == IntentChitchat && c.Complexity == ComplexitySimple && picker != nil {
			providerName := ""
			if c.Conversation != nil {
				providerName = c.Conversation.Provider
			}
			if cheap := picker.CheapModel(providerName); cheap != "" {
				c.Model = cheap
			}
		}

		logger.Debug("classified message",
			"intent", c.Intent, "complexity", c.Complexity, "model", c.Model)
		return next()
	}
}

func classify(text string) (intent, complexity string) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	switch {
	case strings.HasPrefix(trimmed, "/") || strings.HasPrefix(trimmed, "!"):
		intent = IntentCommand
	case isChitchat(lower):
		intent = IntentChitchat
	case isTask(lower):
		intent = IntentTask
	case strings.Contains(trimmed, "?") || hasInterrogativeLead(lower):
		intent = IntentQuestion
	default:
		intent = IntentQuestion
	}

	words := len(strings.Fields(trimmed))
	switch {
	case words <= 8 && intent == IntentChitchat:
		complexity = ComplexitySimple
	case words > 60 || strings.Count(trimmed, "?") > 1 ||
		strings.Contains(lower, " and then ") || strings.Contains(lower, "step by step"):
		complexity = ComplexityComplex
	case words <= 4 && intent != IntentTask:
		complexity = ComplexitySimple
	default:
		complexity = ComplexityStandard
	}
	return intent, complexity
}

func isChitchat(lower string) bool {
	stripped := strings.Trim(lower, " .,!?")
	for _, p := range chitchatPhrases {
		if stripped == p || strings.HasPrefix(stripped, p+" ") && len(strings.Fields(stripped)) <= 4 {
			return true
		}
	}
	return false
}

func isTask(lower string) bool {
	for _, v := range taskVerbs {
		if strings.HasPrefix(lower, v) || strings.Contains(lower, "please "+v) ||
			strings.Contains(lower, "can you "+v) || strings.Contains(lower, "could you "+v) {
			return true
		}
	}
	return false
}

func hasInterrogativeLead(lower string) bool {
	for _, w := range []string{"what", "who", "when", "where", "why", "how", "which", "is ", "are ", "do ", "does ", "can ", "should "} {
		if strings.HasPrefix(lower, w) {
			return true
		}
	}
	return false
}

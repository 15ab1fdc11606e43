package pipeline

import (
	"log/slog"
	"testing"

	"omnigate/internal/domain"
)

func TestClassify_Greeting(t *testing.T) {
	intent, complexity := classify("hi")
	if intent != IntentChitchat {
		t.Fatalf("expected chitchat, got %s", intent)
	}
	if complexity != ComplexitySimple {
		t.Fatalf("expected simple, got %s", complexity)
	}
}

func TestClassify_SlashCommand(t *testing.T) {
	intent, _ := classify("/status")
	if intent != IntentCommand {
		t.Fatalf("expected command, got %s", intent)
	}
}

func TestClassify_TaskVerb(t *testing.T) {
	intent, _ := classify("remind me to call mom at 5pm")
	if intent != IntentTask {
		t.Fatalf("expected task, got %s", intent)
	}
}

func TestClassify_PoliteTask(t *testing.T) {
	intent, _ := classify("hey, can you search for flight prices to Lisbon")
	if intent != IntentTask {
		t.Fatalf("expected task for 'can you search', got %s", intent)
	}
}

func TestClassify_Question(t *testing.T) {
	intent, complexity := classify("What is the capital of Mongolia?")
	if intent != IntentQuestion {
		t.Fatalf("expected question, got %s", intent)
	}
	if complexity != ComplexityStandard {
		t.Fatalf("expected standard, got %s", complexity)
	}
}

func TestClassify_LongMessageIsComplex(t *testing.T) {
	long := ""
	for i := 0; i < 70; i++ {
		long += "word "
	}
	_, complexity := classify(long)
	if complexity != ComplexityComplex {
		t.Fatalf("expected complex for a 70-word message, got %s", complexity)
	}
}

func TestClassify_StepByStepIsComplex(t *testing.T) {
	_, complexity := classify("walk me through setting up a reverse proxy step by step")
	if complexity != ComplexityComplex {
		t.Fatalf("expected complex, got %s", complexity)
	}
}

type fakePicker struct{ cheap string }

func (f fakePicker) CheapModel(name string) string { return f.cheap }

func TestIntentStage_ChitchatRoutesToCheapModel(t *testing.T) {
	stage := IntentStage(fakePicker{cheap: "tiny-model"}, slog.Default())
	c := &Context{
		Incoming:     "hello",
		Conversation: &domain.Conversation{Provider: "ollama"},
	}
	if err := stage(c, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Model != "tiny-model" {
		t.Fatalf("expected cheap model for simple chitchat, got %q", c.Model)
	}
}

func TestIntentStage_QuestionKeepsDefaultModel(t *testing.T) {
	stage := IntentStage(fakePicker{cheap: "tiny-model"}, slog.Default())
	c := &Context{
		Incoming:     "how do goroutines differ from threads?",
		Conversation: &domain.Conversation{Provider: "ollama"},
	}
	if err := stage(c, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Model != "" {
		t.Fatalf("question must not be rerouted, got model %q", c.Model)
	}
}

package pipeline

import (
	"errors"
	"log/slog"
	"testing"

	"omnigate/internal/metrics"
	"omnigate/internal/quota"
)

func TestRun_StagesExecuteInOrder(t *testing.T) {
	var order []string
	stage := func(name string) Stage {
		return func(c *Context, next func() error) error {
			order = append(order, name+":pre")
			err := next()
			order = append(order, name+":post")
			return err
		}
	}

	p := New(stage("a"), stage("b"), stage("c"))
	if err := p.Run(&Context{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"a:pre", "b:pre", "c:pre", "c:post", "b:post", "a:post"}
	if len(order) != len(want) {
		t.Fatalf("expected %d entries, got %v", len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], order[i])
		}
	}
}

func TestRun_OmittingNextShortCircuits(t *testing.T) {
	reached := false
	p := New(
		func(c *Context, next func() error) error {
			c.Reply = "stopped here"
			return nil
		},
		func(c *Context, next func() error) error {
			reached = true
			return next()
		},
	)
	c := &Context{}
	if err := p.Run(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reached {
		t.Fatalf("later stage must not run after short circuit")
	}
	if c.Reply != "stopped here" {
		t.Fatalf("expected reply from short-circuiting stage, got %q", c.Reply)
	}
}

func TestRun_ErrorAbortsChain(t *testing.T) {
	boom := errors.New("boom")
	ran := false
	p := New(
		func(c *Context, next func() error) error { return boom },
		func(c *Context, next func() error) error {
			ran = true
			return next()
		},
	)
	if err := p.Run(&Context{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if ran {
		t.Fatalf("stage after a failed stage must not run")
	}
}

func TestQuotaStage_RejectsWithoutRunningRest(t *testing.T) {
	tracker := quota.NewTracker(1)
	tracker.Allow("alice") // consume the day's allowance

	downstream := false
	p := New(
		QuotaStage(tracker, "limit reached", metrics.NewGateway(), slog.Default()),
		func(c *Context, next func() error) error {
			downstream = true
			return next()
		},
	)

	c := &Context{Owner: "alice"}
	if err := p.Run(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if downstream {
		t.Fatalf("rejected message must not reach later stages")
	}
	if c.Reply != "limit reached" {
		t.Fatalf("expected quota message, got %q", c.Reply)
	}
}

func TestQuotaStage_NilTrackerPassesThrough(t *testing.T) {
	downstream := false
	p := New(
		QuotaStage(nil, "limit reached", nil, slog.Default()),
		func(c *Context, next func() error) error {
			downstream = true
			return nil
		},
	)
	if err := p.Run(&Context{Owner: "alice"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !downstream {
		t.Fatalf("nil tracker must not gate the pipeline")
	}
}

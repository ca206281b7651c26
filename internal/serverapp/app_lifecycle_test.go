package serverapp

import (
	"context"
	"errors"
	"testing"

	"gqlpipeline/internal/config"
	"gqlpipeline/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: "error", Format: "text"})
}

func TestNewRequiresConfigAndLogger(t *testing.T) {
	if _, err := New(nil, testLogger()); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := New(&config.Config{}, nil); err == nil {
		t.Error("expected error for nil logger")
	}
	if _, err := New(&config.Config{}, testLogger()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStartRequiresInit(t *testing.T) {
	app, err := New(&config.Config{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := app.Start(); err == nil {
		t.Error("expected error when starting before Init")
	}
}

func TestShutdownBeforeInitIsSafe(t *testing.T) {
	app, err := New(&config.Config{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := app.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	// Second call must be a no-op.
	if err := app.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWaitForStopRejectsNilChannels(t *testing.T) {
	app, err := New(&config.Config{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := app.WaitForStop(nil, nil); err == nil {
		t.Error("expected error when both channels are nil")
	}
}

func TestShutdownTasksUnwindInReverseOrder(t *testing.T) {
	var order []string
	tasks := shutdownTasks{}
	tasks.add("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	tasks.add("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	if err := tasks.unwind(context.Background(), testLogger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("expected LIFO teardown, got %v", order)
	}
}

func TestShutdownTasksCollectErrorsWithoutStopping(t *testing.T) {
	var ran []string
	tasks := shutdownTasks{}
	tasks.add("inner", func(context.Context) error {
		ran = append(ran, "inner")
		return nil
	})
	tasks.add("outer", func(context.Context) error {
		ran = append(ran, "outer")
		return errors.New("outer teardown failed")
	})

	err := tasks.unwind(context.Background(), testLogger())
	if err == nil {
		t.Fatal("expected the failed task's error to surface")
	}
	if len(ran) != 2 {
		t.Errorf("a failed task must not stop the unwind, ran %v", ran)
	}
}

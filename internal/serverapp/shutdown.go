package serverapp

import (
	"context"
	"errors"
	"log/slog"

	"gqlpipeline/internal/logging"
)

// shutdownTasks releases acquired resources in reverse order of
// acquisition: the HTTP server stops accepting work before the pipeline's
// database handle and telemetry providers go away beneath it.
type shutdownTasks struct {
	tasks []shutdownTask
}

type shutdownTask struct {
	name string
	fn   func(context.Context) error
}

func (s *shutdownTasks) add(name string, fn func(context.Context) error) {
	s.tasks = append(s.tasks, shutdownTask{name: name, fn: fn})
}

// unwind runs every task LIFO and returns the joined errors. Failures are
// logged per component but never stop the remaining teardown.
func (s *shutdownTasks) unwind(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(s.tasks) - 1; i >= 0; i-- {
		task := s.tasks[i]
		if logger != nil {
			logger.Info("shutting down " + task.name)
		}
		if err := task.fn(ctx); err != nil {
			if logger != nil {
				logger.Warn("shutdown task failed",
					slog.String("component", task.name),
					slog.String("error", err.Error()),
				)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown gracefully releases all acquired resources. Only the first call
// tears anything down; repeated calls return nil.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var err error
	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.started = false
		a.stateMu.Unlock()

		err = cleanup.unwind(ctx, a.logger)
	})
	return err
}

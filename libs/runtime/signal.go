package runtime

import (
	"context"
	"os/signal"
	"syscall"
	"time"
)

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// Shutdown runs each step with its own bounded context, in order, after the signal
// context is done. Errors are collected per step name.
func Shutdown(timeout time.Duration, steps ...ShutdownStep) map[string]error {
	failures := map[string]error{}
	for _, step := range steps {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := step.Run(ctx); err != nil {
			failures[step.Name] = err
		}
		cancel()
	}
	return failures
}

type ShutdownStep struct {
	Name string
	Run  func(context.Context) error
}

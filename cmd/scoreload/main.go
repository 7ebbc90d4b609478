// Command scoreload generates weighted random traffic against a leaderboard
// service and reports latency and error statistics.
//
// Usage:
//
//	scoreload [flags]
//
// Exit codes: 0 on success or interrupt, 1 when a threshold fails, 2 on a
// configuration error or when the service is unreachable.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"scoreload/internal/app"
	"scoreload/internal/config"
	"scoreload/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := config.NewFlags("scoreload")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return app.ExitOK
		}
		return app.ExitError
	}

	cfg, err := flags.Resolve()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration:\n%v\n", err)
		return app.ExitError
	}

	log := logging.New(cfg.Log.Verbose, cfg.Log.JSON)
	defer log.Sync()

	var state *app.RunState
	fxApp := fx.New(
		fx.Supply(cfg),
		fx.Supply(log),
		fx.Supply(app.Streams{Out: os.Stdout}),
		fx.WithLogger(func() fxevent.Logger {
			if cfg.Log.Verbose {
				return &fxevent.ZapLogger{Logger: log.Named("fx")}
			}
			return fxevent.NopLogger
		}),
		app.Module,
		fx.Invoke(app.Run),
		fx.Populate(&state),
	)
	if err := fxApp.Err(); err != nil {
		log.Error("building application", zap.Error(err))
		return app.ExitError
	}

	startCtx, cancel := context.WithTimeout(context.Background(), fxApp.StartTimeout())
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		log.Error("starting application", zap.Error(err))
		return app.ExitError
	}

	// Either the run finished and shut the app down itself, or a signal
	// arrived. In both cases Stop waits for the workers to drain.
	<-fxApp.Wait()

	// In-flight calls are bounded by the request timeout.
	stopCtx, cancelStop := context.WithTimeout(context.Background(), cfg.Target.RequestTimeout+fxApp.StopTimeout())
	defer cancelStop()
	if err := fxApp.Stop(stopCtx); err != nil {
		log.Error("stopping application", zap.Error(err))
		if !state.Finished() {
			return app.ExitError
		}
	}

	return state.ExitCode()
}

// Command thumbscan lists every video of an account and reports the ones
// whose cover thumbnail is missing.
//
//	thumbscan scan [flags]     run one scan and print the defects
//	thumbscan serve [flags]    expose scans over HTTP and WebSocket
//	thumbscan redrive [flags]  re-check failures queued in Redis
//
// Credentials and endpoints come from THUMBSCAN_* environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/raysh454/thumbscan/internal/app"
	"github.com/raysh454/thumbscan/internal/cli"
	"github.com/raysh454/thumbscan/internal/logging"
	"github.com/raysh454/thumbscan/internal/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "thumbscan: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	args, err := cli.ParseArgs(argv)
	if err != nil {
		return err
	}

	cfg := app.DefaultConfig()
	if err := app.LoadFromEnv(cfg); err != nil {
		return err
	}
	if err := args.Apply(cfg); err != nil {
		return err
	}

	logger := logging.NewLogger(os.Stderr, "thumbscan", logging.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApplication(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	switch args.Command {
	case cli.CommandServe:
		return serve(ctx, a, logger)
	case cli.CommandRedrive:
		return redrive(ctx, a)
	default:
		return scan(ctx, a, args.OutFile)
	}
}

func scan(ctx context.Context, a *app.Application, outFile string) error {
	report, err := a.Orch.RunScan(ctx, nil)
	if err != nil {
		return err
	}

	list := report.DefectList()
	fmt.Printf("Discovered %d videos (%d deleted)\n", report.Total, report.Deleted)
	fmt.Printf("Defective (%d): %s\n", len(report.Defects), list)
	if len(report.Errors) > 0 {
		fmt.Printf("Unchecked: %d metadata fetches failed\n", len(report.Errors))
	}
	fmt.Printf("Elapsed: %s\n", time.Duration(report.ElapsedMS)*time.Millisecond)

	if outFile != "" {
		if err := os.WriteFile(outFile, []byte(list+"\n"), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", outFile, err)
		}
	}
	return nil
}

func serve(ctx context.Context, a *app.Application, logger logging.Logger) error {
	s, err := server.NewServer(server.Config{ListenAddr: a.Config.ServerAddr, Logger: logger}, a.Orch)
	if err != nil {
		return err
	}
	srv := s.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", logging.Field{Key: "addr", Value: srv.Addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func redrive(ctx context.Context, a *app.Application) error {
	if !a.DeadLetters.Enabled() {
		return errors.New("dead letter queue is disabled (set THUMBSCAN_REDIS_ADDR or -redis)")
	}
	res, err := a.Orch.RedriveDeadLetters(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Re-checked %d (recovered %d, requeued %d, dropped %d)\n",
		res.Stats.Processed, res.Stats.Recovered, res.Stats.Requeued, res.Stats.Dropped)
	fmt.Printf("Defective (%d): %s\n", len(res.Defects), strings.Join(res.Defects, ","))
	return nil
}

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/seqfabric/batchbridge/internal/api"
	"github.com/seqfabric/batchbridge/internal/batch"
	"github.com/seqfabric/batchbridge/internal/config"
	"github.com/seqfabric/batchbridge/internal/coordinator"
	"github.com/seqfabric/batchbridge/internal/model"
	"github.com/seqfabric/batchbridge/internal/overrides"
	"github.com/seqfabric/batchbridge/internal/tracker"
)

func main() {
	settings := config.Load()
	logger := config.NewLogger(os.Stderr, settings.LogLevel)
	for _, w := range settings.Warnings {
		logger.Warn(w)
	}

	if err := run(settings, logger); err != nil {
		log.Fatalf("batchbridge: %v", err)
	}
}

func run(settings config.Settings, logger *slog.Logger) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: batchbridge <tasks.json>")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := batch.NewFromConfig(ctx, settings.Region, logger)
	if err != nil {
		return err
	}

	// Coordinator mode hands the whole run to a single remote job, unless
	// this process is already that job.
	if settings.Coordinator && !coordinator.InContext() {
		launcher := coordinator.NewLauncher(client, settings, logger)
		verdict, err := launcher.Launch(ctx, os.Args[1:], settings.Detach)
		if err != nil {
			return err
		}
		if verdict != model.VerdictSucceeded {
			return fmt.Errorf("coordinator job finished with verdict %s", verdict)
		}
		return nil
	}

	tasks, err := readManifest(os.Args[1])
	if err != nil {
		return err
	}

	t := tracker.New(client, tracker.Config{
		Queue:         settings.JobQueue,
		JobDefinition: settings.JobDefinition,
		Override: overrides.Options{
			Region:          settings.Region,
			StorageProvider: settings.StorageProvider,
			StoragePrefix:   settings.StoragePrefix,
		},
		PollInterval: settings.PollInterval,
		GraceWindow:  settings.GraceWindow,
		JobTimeout:   settings.JobTimeout,
		MaxInFlight:  settings.MaxInFlight,
	}, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go t.Run(runCtx)

	if settings.StatusAddr != "" {
		srv := api.NewServer(settings.StatusAddr, t, logger)
		go func() {
			if err := srv.Run(runCtx); err != nil {
				logger.Error("status server failed", "error", err)
			}
		}()
	}

	expected := 0
	failed := 0
	for _, task := range tasks {
		if err := t.Track(ctx, task); err != nil {
			logger.Error("task rejected", "task_id", task.ID, "error", err)
			failed++
			continue
		}
		expected++
	}

	for i := 0; i < expected; i++ {
		select {
		case oc := <-t.Outcomes():
			if oc.Verdict != model.VerdictSucceeded {
				failed++
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	cancel()
	t.Wait()

	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, len(tasks))
	}
	logger.Info("all tasks succeeded", "tasks", len(tasks))
	return nil
}

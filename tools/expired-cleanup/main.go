package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/covid19cz/erouska-push/internal/app"
	"github.com/covid19cz/erouska-push/internal/logging"
	"github.com/covid19cz/erouska-push/internal/push"
	"github.com/covid19cz/erouska-push/internal/utils"
)

type expiredCleaner interface {
	PeekExpiredRegistrations(ctx context.Context) ([]string, error)
	PurgeExpiredRegistrations(ctx context.Context) ([]push.Mutation, error)
}

func main() {
	dryRun := flag.Bool("dry-run", false, "only list devices that would be deleted, the expired log is kept")
	flag.Parse()

	ctx := context.Background()
	logger := logging.FromContext(ctx).Named("expired-cleanup")

	if err := run(ctx, *dryRun); err != nil {
		logger.Fatal(err)
	}
}

func run(ctx context.Context, dryRun bool) error {
	logger := logging.FromContext(ctx).Named("expired-cleanup.run")

	config, err := utils.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	a, err := app.New(ctx, config)
	if err != nil {
		return fmt.Errorf("error initializing app: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warnf("error closing app: %v", err)
		}
	}()

	return cleanup(ctx, a.Sender, dryRun)
}

func cleanup(ctx context.Context, cleaner expiredCleaner, dryRun bool) error {
	logger := logging.FromContext(ctx).Named("expired-cleanup.cleanup")

	if dryRun {
		ids, err := cleaner.PeekExpiredRegistrations(ctx)
		if err != nil {
			return fmt.Errorf("error reading expired registrations: %w", err)
		}
		for _, id := range ids {
			logger.Infof("expired device: %v", id)
		}
		logger.Infof("found %v expired devices, nothing deleted", len(ids))
		return nil
	}

	mutations, err := cleaner.PurgeExpiredRegistrations(ctx)
	for _, m := range mutations {
		logger.Infof("deleted expired device: %v", m.DeviceID)
	}
	if err != nil {
		return fmt.Errorf("error deleting expired devices: %w", err)
	}

	logger.Infof("deleted %v expired devices", len(mutations))
	return nil
}

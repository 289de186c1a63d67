package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/NickCassab/email-buddy/internal/adapters/scoringconfig"
	"github.com/NickCassab/email-buddy/internal/config"
	"github.com/NickCassab/email-buddy/internal/core"
	"github.com/NickCassab/email-buddy/internal/di"
	"github.com/NickCassab/email-buddy/internal/ports"
)

func main() {
	// A local .env feeds EMAIL_BUDDY_* overrides
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Printf("Failed to load .env file: %v\n", err)
		os.Exit(1)
	}

	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	frontends []ports.Frontend,
	provider *scoringconfig.FileProvider,
	store core.TriageStore,
	source core.MailSource,
) error {
	defer logger.Sync()

	defer func() {
		if closer, ok := source.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				logger.Error("Failed to close mail source", zap.Error(err))
			}
		}
		if err := store.Close(); err != nil {
			logger.Error("Failed to close triage store", zap.Error(err))
		}
	}()

	if _, err := provider.Load(); err != nil {
		logger.Warn("Scoring settings incomplete, defaults in use", zap.Error(err))
	}
	if cfg.GetScoring().Watch {
		provider.Watch()
	}

	// Start the frontends
	started := make([]ports.Frontend, 0, len(frontends))
	for _, fe := range frontends {
		if err := fe.Start(); err != nil {
			logger.Error("Failed to start frontend", zap.String("frontend", fe.Name()), zap.Error(err))
			stopAll(logger, started)
			return err
		}
		started = append(started, fe)
	}
	logger.Info("email-buddy running",
		zap.String("store", cfg.GetStore().Type),
		zap.String("mail_source", cfg.GetMail().Source),
		zap.Int("frontends", len(started)))

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("Shutting down...", zap.String("signal", sig.String()))

	stopAll(logger, started)
	return nil
}

// stopAll stops frontends in reverse start order
func stopAll(logger *zap.Logger, frontends []ports.Frontend) {
	for i := len(frontends) - 1; i >= 0; i-- {
		if err := frontends[i].Stop(); err != nil {
			logger.Error("Failed to stop frontend", zap.String("frontend", frontends[i].Name()), zap.Error(err))
		}
	}
}

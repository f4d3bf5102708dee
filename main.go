// Command genforge runs the load-balanced image generation engine: a
// credential pool fronting the upstream image API, a retrying batch
// dispatcher, ZIP packaging of the output, and an HTTP surface to drive it.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"genforge/core"
	"genforge/core/validation"
	"genforge/delivery"
	"genforge/imagegen"
	"genforge/logging"
	"genforge/metrics"
	"genforge/orchestrator"
	"genforge/packager"
	"genforge/pool"
	"genforge/shutdown"
	"genforge/webapi"
)

// stopApp is set once the shutdown manager exists, for the service wrapper.
var stopApp func()

func main() {
	if HandleServiceCommand(os.Args[1:]) {
		return
	}
	if ranAsService, err := RunAsService(); err != nil {
		fmt.Printf("Service error: %v\n", err)
		os.Exit(core.ExitCodeError)
	} else if ranAsService {
		return
	}

	os.Exit(runApp())
}

// runApp wires and runs the engine until shutdown. Returns the process
// exit code.
func runApp() int {
	if err := godotenv.Load(); err != nil {
		// Logger is not up yet.
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	config, err := core.LoadConfig()
	if err != nil {
		if cfgErr, ok := core.IsConfigError(err); ok {
			fmt.Printf("Configuration error [%s]: %s\n", cfgErr.Code, cfgErr.Message)
			if cfgErr.Action != "" {
				fmt.Printf("  %s\n", cfgErr.Action)
			}
		} else {
			fmt.Printf("Failed to load configuration: %v\n", err)
		}
		return core.ExitCodeError
	}

	logger := logging.NewLogger(config.DevMode, config.LogFilePath)
	defer logger.Sync()

	result := validation.NewSuite().Validate(config)
	if !result.Success {
		logger.Error("startup validation failed", zap.String("summary", result.Summary()))
		return core.ExitCodeError
	}
	logger.Info("startup validation passed", zap.String("summary", result.Summary()))

	logger.Info("configuration loaded",
		zap.Int("credentials", len(config.Credentials)),
		zap.Int("total_capacity", config.TotalCapacity()),
		zap.Int("max_retries", config.MaxRetries),
		zap.Duration("retry_base_delay", config.RetryBaseDelay),
		zap.Duration("acquire_timeout", config.AcquireTimeout),
		zap.String("image_model", config.ImageModel),
		zap.String("packing_threshold", core.FormatBytes(config.PackingThreshold())),
		zap.Bool("dev_mode", config.DevMode))

	manager := shutdown.NewManager(logger)
	stopApp = manager.Trigger

	accountPool, err := pool.New(config.Credentials, pool.Config{
		DefaultMaxConcurrent: config.MaxConcurrentPerAccount,
	}, logger)
	if err != nil {
		logger.Error("creating account pool failed", zap.Error(err))
		return core.ExitCodeError
	}

	provider := imagegen.NewOpenAIProvider(imagegen.OpenAIProviderConfig{
		BaseURL: config.ImageEndpoint,
		Model:   config.ImageModel,
		Timeout: config.AITimeout,
	})
	executor := imagegen.NewRetryExecutor(accountPool, provider, imagegen.ExecutorConfig{
		MaxAttempts:    config.MaxRetries,
		BaseDelay:      config.RetryBaseDelay,
		AcquireTimeout: config.AcquireTimeout,
	}, logger)
	dispatcher := imagegen.NewBatchDispatcher(executor, logger)

	store := metrics.NewStore(metrics.DefaultHistoryCapacity)
	packer := packager.New(config.ArchiveCeiling, config.ArchiveMargin, logger)

	outputDir := core.GetEnvOrDefault("OUTPUT_DIR", "output")
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		logger.Error("creating output directory failed", zap.Error(err))
		return core.ExitCodeError
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Dispatcher: dispatcher,
		Packer:     packer,
		Metrics:    store,
		Ledger:     orchestrator.NewUnlimitedLedger(),
		Deliverer:  newFileDeliverer(outputDir, logger),
		MaxImages:  config.MaxImagesPerGeneration,
	}, logger)
	if err != nil {
		logger.Error("creating orchestrator failed", zap.Error(err))
		return core.ExitCodeError
	}

	server, err := webapi.NewServer(webapi.ServerConfig{
		Host:      config.ServerHost,
		Port:      config.ServerPort,
		TokenHash: config.APITokenHash,
	}, orch, accountPool, store, manager, logger)
	if err != nil {
		logger.Error("creating http server failed", zap.Error(err))
		return core.ExitCodeError
	}
	server.SetProgressSink(progressLogger{logger: logger.Named("progress")})

	manager.Register("logger", 5, func(context.Context) error {
		return logger.Sync()
	})
	manager.Register("http-server", 10, func(ctx context.Context) error {
		stopCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return server.Shutdown(stopCtx)
	})

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("http server failed", zap.Error(err))
			manager.Trigger()
		}
	}()

	manager.Start()
	manager.Wait()

	if err := manager.Shutdown(); err != nil {
		logger.Error("shutdown finished with errors", zap.Error(err))
		return core.ExitCodeError
	}

	code := core.ExitCodeForSignal(manager.Signal())
	if core.IsSignalExit(code) {
		logger.Info("exiting", zap.String("reason", core.ExitCodeName(code)))
	}
	return code
}

// progressLogger logs batch progress; it is the default sink for requests
// arriving without their own.
type progressLogger struct {
	logger *logging.Logger
}

func (p progressLogger) Progress(_ context.Context, update imagegen.ProgressUpdate) {
	p.logger.Info("batch progress",
		zap.String("line", delivery.ProgressLine(update.Completed, update.Total)),
		zap.Int("index", update.Outcome.Index),
		zap.Bool("success", update.Outcome.Success))
}

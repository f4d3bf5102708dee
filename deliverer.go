package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"genforge/logging"
	"genforge/orchestrator"
)

// fileDeliverer writes finished archives to a per-generation directory and
// logs the summary. It is the standalone deployment's Deliverer; hosted
// deployments plug in their own transport.
type fileDeliverer struct {
	dir    string
	logger *logging.Logger
}

func newFileDeliverer(dir string, logger *logging.Logger) *fileDeliverer {
	return &fileDeliverer{dir: dir, logger: logger.Named("deliverer")}
}

func (d *fileDeliverer) Deliver(_ context.Context, delivery orchestrator.Delivery) error {
	outDir := filepath.Join(d.dir, delivery.GenerationID)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	for _, archive := range delivery.Archives {
		path := filepath.Join(outDir, archive.Name)
		if err := os.WriteFile(path, archive.Data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", archive.Name, err)
		}
		d.logger.Info("archive written",
			zap.String("path", path),
			zap.Int("files", len(archive.Files)),
			zap.Int("bytes", len(archive.Data)))
	}

	d.logger.Info("generation delivered",
		zap.String("generation_id", delivery.GenerationID),
		zap.String("summary", delivery.Summary))
	return nil
}

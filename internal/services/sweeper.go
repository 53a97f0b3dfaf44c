package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/highlightextractor/internal/filestate"
	"github.com/Lllllllleong/highlightextractor/internal/gcp"
	"github.com/Lllllllleong/highlightextractor/internal/models"
)

// ObjectLister lists the objects under a prefix.
type ObjectLister interface {
	List(ctx context.Context, bucket, prefix string) ([]gcp.ObjectInfo, error)
}

// SweeperConfig holds configuration for the sweep service.
type SweeperConfig struct {
	ExportBucket string
	// MinAge is how long an export must sit in the new folder before the
	// sweeper takes it. It must exceed the trigger function's timeout so a
	// file the trigger is still working on is never ingested twice.
	MinAge time.Duration
}

// SweeperFunction re-drives exports left in the new folder, for example after
// the trigger was disabled or an invocation was killed before relocating.
// Files are ingested one after another through the same path as the trigger.
type SweeperFunction struct {
	ingestor *IngestorFunction
	lister   ObjectLister
	config   SweeperConfig
	now      func() time.Time
}

// NewSweeper creates a new SweeperFunction backed by Cloud Storage and Firestore.
func NewSweeper(ctx context.Context) (*SweeperFunction, error) {
	ingestorConfig, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	config, err := loadSweeperConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, ingestorConfig.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	blobs := gcp.NewGCSBlobStore(storageClient)
	ingestor := newIngestor(*ingestorConfig, blobs, gcp.NewFirestoreStore(firestoreClient))
	return newSweeper(config, ingestor, blobs), nil
}

func loadSweeperConfig() (SweeperConfig, error) {
	bucket := gcp.GetEnv("EXPORT_BUCKET", "")
	if bucket == "" {
		return SweeperConfig{}, fmt.Errorf("EXPORT_BUCKET environment variable must be set")
	}
	minAge, err := time.ParseDuration(gcp.GetEnv("SWEEP_MIN_AGE", "10m"))
	if err != nil || minAge <= 0 {
		return SweeperConfig{}, fmt.Errorf("SWEEP_MIN_AGE must be a positive duration")
	}
	return SweeperConfig{ExportBucket: bucket, MinAge: minAge}, nil
}

func newSweeper(config SweeperConfig, ingestor *IngestorFunction, lister ObjectLister) *SweeperFunction {
	return &SweeperFunction{ingestor: ingestor, lister: lister, config: config, now: time.Now}
}

// Process ingests the exports that have waited in the new folder for at least
// MinAge, in name order. Younger files are left to their trigger invocation.
// It stops at the first relocation failure.
func (f *SweeperFunction) Process(ctx context.Context, req *models.SweepRequest) (*models.SweepResponse, error) {
	bucket := f.config.ExportBucket
	if req.Bucket != "" {
		bucket = req.Bucket
	}
	logCtx := slog.With("gcsBucket", bucket)
	logCtx.Info("Starting sweep.", "limit", req.Limit, "minAge", f.config.MinAge.String())

	objects, err := f.lister.List(ctx, bucket, TriggerPrefix+"/")
	if err != nil {
		logCtx.Error("Failed to list pending exports", "error", err)
		return nil, fmt.Errorf("failed to list pending exports: %w", err)
	}

	res := &models.SweepResponse{Status: "success"}
	cutoff := f.now().Add(-f.config.MinAge)
	var pending []string
	for _, obj := range objects {
		if !shouldProcess(obj.Name) {
			continue
		}
		if obj.Updated.After(cutoff) {
			res.Skipped++
			continue
		}
		pending = append(pending, obj.Name)
	}
	slices.Sort(pending)
	logCtx.Info("Found pending exports.", "pendingCount", len(pending), "tooRecent", res.Skipped)

	for i, name := range pending {
		if req.Limit > 0 && i >= req.Limit {
			res.Remaining = len(pending) - i
			break
		}

		state, err := f.ingestor.Ingest(ctx, bucket, name)
		var relErr *RelocationError
		switch {
		case errors.As(err, &relErr):
			logCtx.Error("Stopping sweep after relocation failure", "error", err, "gcsObject", name)
			return nil, err
		case errors.Is(err, gcp.ErrObjectNotFound):
			// Relocated by another invocation between listing and opening.
			res.Skipped++
		case state == filestate.Processed:
			res.Processed++
		default:
			res.Failed++
			res.Failures = append(res.Failures, name)
		}
	}

	logCtx.Info("Sweep complete.",
		"processed", res.Processed,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"remaining", res.Remaining,
	)
	return res, nil
}

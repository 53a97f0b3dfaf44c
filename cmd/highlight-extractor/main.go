package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/highlightextractor/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	ingestorInstance *services.IngestorFunction
	once             sync.Once
	initErr          error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Fired by object finalize events on the export bucket.
	functions.CloudEvent("ExtractHighlights", extractHighlights)
}

// main is required by the Go Functions Framework.
func main() {}

// extractHighlights is the Cloud Function entry point.
func extractHighlights(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		ingestorInstance, initErr = services.NewIngestor(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	// Processing failures are logged inside and end with the file in the
	// error folder; only a failed relocation comes back here.
	return ingestorInstance.HandleEvent(ctx, e)
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/highlightextractor/internal/extractor"
	"github.com/Lllllllleong/highlightextractor/internal/filestate"
	"github.com/Lllllllleong/highlightextractor/internal/gcp"
	"github.com/Lllllllleong/highlightextractor/internal/models"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"golang.org/x/sync/errgroup"
)

// TriggerPrefix selects the objects this function ingests. Everything else in
// the bucket is ignored.
const TriggerPrefix = "extractor/new"

// ErrNotNewState is returned by Ingest for a path with no "new" segment to
// replace. Such a file cannot be relocated and is left untouched.
var ErrNotNewState = errors.New("path has no new state segment")

// BlobStore reads export files and moves them between state folders.
type BlobStore interface {
	Open(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	Move(ctx context.Context, bucket, src, dst string) error
}

// DocumentStore inserts records into named collections.
type DocumentStore interface {
	Insert(ctx context.Context, collection string, doc any) (string, error)
}

// IngestorConfig holds configuration for the highlight extractor service.
type IngestorConfig struct {
	ProjectID         string
	BooksCollection   string
	QuotesCollection  string
	UploadedBy        string
	WriteConcurrency  int
	RelocationTimeout time.Duration
}

// IngestorFunction holds dependencies for the ingestion logic.
type IngestorFunction struct {
	blobs     BlobStore
	docs      DocumentStore
	extractor *extractor.Extractor
	config    IngestorConfig
}

// RelocationError reports that a file could not be moved to its terminal
// state. There is no fallback location, so it is surfaced to the runtime.
type RelocationError struct {
	Bucket string
	From   string
	To     string
	Err    error
}

func (e *RelocationError) Error() string {
	return fmt.Sprintf("failed to move gs://%s/%s to %s: %v", e.Bucket, e.From, e.To, e.Err)
}

func (e *RelocationError) Unwrap() error { return e.Err }

// loadConfig loads and validates all necessary environment variables for this service.
func loadConfig() (*IngestorConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	writeConcurrency, err := strconv.Atoi(gcp.GetEnv("WRITE_CONCURRENCY", "10"))
	if err != nil || writeConcurrency < 1 {
		return nil, fmt.Errorf("WRITE_CONCURRENCY must be a positive integer")
	}
	relocationTimeout, err := time.ParseDuration(gcp.GetEnv("RELOCATION_TIMEOUT", "30s"))
	if err != nil || relocationTimeout <= 0 {
		return nil, fmt.Errorf("RELOCATION_TIMEOUT must be a positive duration")
	}

	config := &IngestorConfig{
		ProjectID:         projectID,
		BooksCollection:   gcp.GetEnv("BOOKS_COLLECTION", "books"),
		QuotesCollection:  gcp.GetEnv("QUOTES_COLLECTION", "quotes"),
		UploadedBy:        gcp.GetEnv("UPLOADED_BY", ""),
		WriteConcurrency:  writeConcurrency,
		RelocationTimeout: relocationTimeout,
	}
	if config.BooksCollection == "" || config.QuotesCollection == "" {
		return nil, fmt.Errorf("BOOKS_COLLECTION and QUOTES_COLLECTION must not be empty")
	}
	return config, nil
}

// NewIngestor creates a new IngestorFunction backed by Cloud Storage and Firestore.
func NewIngestor(ctx context.Context) (*IngestorFunction, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	f := newIngestor(*config, gcp.NewGCSBlobStore(storageClient), gcp.NewFirestoreStore(firestoreClient))
	slog.Info("Highlight extractor initialized.",
		"booksCollection", config.BooksCollection,
		"quotesCollection", config.QuotesCollection,
	)
	return f, nil
}

func newIngestor(config IngestorConfig, blobs BlobStore, docs DocumentStore) *IngestorFunction {
	return &IngestorFunction{
		blobs:     blobs,
		docs:      docs,
		extractor: extractor.New(extractor.DefaultLayout()),
		config:    config,
	}
}

// HandleEvent decodes a Cloud Storage CloudEvent and processes the object it names.
func (f *IngestorFunction) HandleEvent(ctx context.Context, e cloudevents.Event) error {
	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "eventId", e.ID(), "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	return f.Process(ctx, gcsEvent)
}

// Process ingests the object named by e if it is a new export. Extraction and
// persistence failures are terminal for the file: they are logged, the file is
// moved to the error folder and nil is returned. Only a failed relocation is
// returned to the caller.
func (f *IngestorFunction) Process(ctx context.Context, e models.GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("New file event received.")

	if !shouldProcess(e.Name) {
		logCtx.Info("Object is not a new export. Ignoring.", "triggerPrefix", TriggerPrefix)
		return nil
	}

	_, err := f.Ingest(ctx, e.Bucket, e.Name)
	var relErr *RelocationError
	if errors.As(err, &relErr) {
		return err
	}
	// Any other error has been logged and the file now sits in the error folder.
	return nil
}

func shouldProcess(name string) bool {
	if !strings.HasPrefix(name, TriggerPrefix) || strings.HasSuffix(name, "/") {
		return false
	}
	state, ok := filestate.StateOf(name)
	return ok && state == filestate.New
}

// Ingest runs the whole pipeline for one file and moves it exactly once: to
// processed if every step succeeded, to error otherwise. It returns the state
// the file ended up in and the first failure. A file that is gone by the time
// it is opened is not moved and is reported with gcp.ErrObjectNotFound.
//
// Records already written are not rolled back when a later write fails.
func (f *IngestorFunction) Ingest(ctx context.Context, bucket, name string) (filestate.State, error) {
	logCtx := slog.With("gcsBucket", bucket, "gcsObject", name)
	if filestate.MoveTo(name, filestate.New, filestate.Processed) == name {
		return filestate.New, fmt.Errorf("%w: %s", ErrNotNewState, name)
	}
	start := time.Now()

	book, err := f.extractAndPersist(ctx, logCtx, bucket, name)
	if errors.Is(err, gcp.ErrObjectNotFound) {
		// Another invocation already moved it; there is nothing left to relocate.
		logCtx.Warn("Export no longer exists. Skipping.", "error", err)
		return filestate.New, err
	}
	if err != nil {
		logCtx.Error("Failed to ingest export. Moving it to the error folder.", "error", err)
		if relErr := f.relocate(ctx, logCtx, bucket, name, filestate.Error); relErr != nil {
			logCtx.Error("CRITICAL: Failed to move export to the error folder.", "error", relErr)
			return filestate.New, errors.Join(err, relErr)
		}
		return filestate.Error, err
	}

	if err := f.relocate(ctx, logCtx, bucket, name, filestate.Processed); err != nil {
		logCtx.Error("CRITICAL: Records were written but the export could not be moved.", "error", err)
		return filestate.New, err
	}

	logCtx.Info("Export ingested.",
		"title", book.Title,
		"quoteCount", len(book.Quotes),
		"processingTime", time.Since(start).String(),
	)
	return filestate.Processed, nil
}

func (f *IngestorFunction) extractAndPersist(ctx context.Context, logCtx *slog.Logger, bucket, name string) (*models.BookRecord, error) {
	reader, err := f.blobs.Open(ctx, bucket, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	defer reader.Close()

	book, err := f.extractor.Extract(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to extract export: %w", err)
	}
	book.UploadedBy = f.config.UploadedBy
	book.SourceFile = fmt.Sprintf("gs://%s/%s", bucket, name)
	logCtx.Info("Export extracted.", "title", book.Title, "authors", book.Authors, "quoteCount", len(book.Quotes))

	if err := f.persist(ctx, logCtx, book); err != nil {
		return nil, err
	}
	return book, nil
}

// persist writes every quote and the book concurrently and waits for all of
// them to settle. The first failure is returned.
func (f *IngestorFunction) persist(ctx context.Context, logCtx *slog.Logger, book *models.BookRecord) error {
	quotes := book.QuoteRecords()

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(f.config.WriteConcurrency)

	for i := range quotes {
		quoteNumber := i + 1
		quote := quotes[i]
		eg.Go(func() error {
			if _, err := f.docs.Insert(gctx, f.config.QuotesCollection, quote); err != nil {
				return fmt.Errorf("quote %d: %w", quoteNumber, err)
			}
			return nil
		})
	}
	eg.Go(func() error {
		id, err := f.docs.Insert(gctx, f.config.BooksCollection, book)
		if err != nil {
			return fmt.Errorf("book: %w", err)
		}
		logCtx.Info("Book record created.", "documentId", id)
		return nil
	})

	if err := eg.Wait(); err != nil {
		return fmt.Errorf("failed to persist records: %w", err)
	}
	return nil
}

// relocate moves the file from the new folder to the given state. It runs on a
// context detached from ctx's cancellation so a blown invocation deadline
// still leaves the file in a terminal folder.
func (f *IngestorFunction) relocate(ctx context.Context, logCtx *slog.Logger, bucket, name string, to filestate.State) error {
	dst := filestate.MoveTo(name, filestate.New, to)
	if !to.Terminal() {
		return &RelocationError{Bucket: bucket, From: name, To: dst, Err: fmt.Errorf("%q is not a terminal state", to)}
	}

	moveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.config.RelocationTimeout)
	defer cancel()

	if err := f.blobs.Move(moveCtx, bucket, name, dst); err != nil {
		return &RelocationError{Bucket: bucket, From: name, To: dst, Err: err}
	}
	logCtx.Info("Export relocated.", "state", string(to), "destination", dst)
	return nil
}

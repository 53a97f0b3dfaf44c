package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/highlightextractor/internal/models"
	"github.com/Lllllllleong/highlightextractor/internal/services"
)

// maxRequestBytes bounds the JSON body; a sweep request is two small fields.
const maxRequestBytes = 4 << 10

var (
	sweeperInstance *services.SweeperFunction
	once            sync.Once
	initErr         error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleSweep", handleSweep)
}

func main() {}

// handleSweep re-drives exports stranded in the new folder. It is meant to be
// called by Cloud Scheduler; a response with remaining > 0 means the limit was
// hit and another call is needed.
func handleSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	once.Do(func() {
		sweeperInstance, initErr = services.NewSweeper(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: Sweeper initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	req, err := decodeSweepRequest(r)
	if err != nil {
		slog.Warn("Rejected sweep request", "error", err)
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		return
	}

	res, err := sweeperInstance.Process(r.Context(), req)
	if err != nil {
		// Process logs the failing object.
		http.Error(w, "Internal Server Error: sweep stopped on a relocation failure", http.StatusInternalServerError)
		return
	}
	if res.Remaining > 0 {
		slog.Info("Sweep hit its limit. Exports are still waiting.", "remaining", res.Remaining, "limit", req.Limit)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

// decodeSweepRequest reads an optional JSON body. An empty body sweeps the
// configured bucket with no limit.
func decodeSweepRequest(r *http.Request) (*models.SweepRequest, error) {
	var req models.SweepRequest
	if r.Body == nil || r.ContentLength == 0 {
		return &req, nil
	}

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return &req, nil
		}
		return nil, fmt.Errorf("could not parse JSON: %w", err)
	}
	if req.Limit < 0 {
		return nil, fmt.Errorf("limit must not be negative")
	}
	return &req, nil
}

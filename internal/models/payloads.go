package models

// GCSEvent is the data payload of a Cloud Storage object event.
// Only the fields the extractor consumes are decoded.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// SweepRequest is the input for the sweep function.
type SweepRequest struct {
	// Bucket overrides the configured export bucket.
	Bucket string `json:"bucket,omitempty"`
	// Limit caps how many files one call ingests. Zero means no limit.
	Limit int `json:"limit,omitempty"`
}

// SweepResponse is the output of the sweep function.
type SweepResponse struct {
	Status    string   `json:"status"`
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Remaining int      `json:"remaining"`
	Failures  []string `json:"failures,omitempty"`
}

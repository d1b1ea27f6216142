// Package ocr reads the text of scanned sale contracts with the Google Cloud Vision API.
//
// A signed contract is usually photographed or scanned to PDF. The scanner sends the
// PDF inline (no Cloud Storage upload), joins the text of every page and tidies the
// whitespace so it can be stored as a sale's contract text.
//
// Credentials come from GOOGLE_CREDENTIALS (inline JSON) or
// GOOGLE_APPLICATION_CREDENTIALS (a file path), falling back to the default
// application credentials.
//
// Synchronous Vision processing is limited to 20MB and 5 pages per document.
package ocr

import (
	"context"
	"io"
	"time"
)

// ContractScanner extracts text from scanned contracts.
type ContractScanner interface {
	// ProcessPDF returns the cleaned text of all pages.
	ProcessPDF(ctx context.Context, pdfData io.Reader) (string, error)

	// Scan returns the text together with page and confidence details.
	Scan(ctx context.Context, pdfData io.Reader) (*ScanResult, error)

	Close() error
}

// ScanResult is the outcome of reading one contract.
type ScanResult struct {
	Text       string        `json:"text"`
	PageCount  int           `json:"page_count"`
	Confidence float32       `json:"confidence"`
	Languages  []string      `json:"languages,omitempty"`
	ScannedAt  time.Time     `json:"scanned_at"`
	Duration   time.Duration `json:"duration"`
}

// LowConfidence is the average confidence below which a scan should be checked by hand.
const LowConfidence = 0.6

// NeedsReview reports whether the scan is too uncertain to trust as is.
func (r *ScanResult) NeedsReview() bool {
	return r.Confidence > 0 && r.Confidence < LowConfidence
}

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"installments/internal/logger"
)

const (
	// MaxFileSizeBytes is the maximum file size for synchronous processing.
	MaxFileSizeBytes = 20 * 1024 * 1024

	// MaxPagesSync is the maximum number of pages for synchronous processing.
	MaxPagesSync = 5
)

// VisionScanner implements ContractScanner with Google Cloud Vision.
type VisionScanner struct {
	client *vision.ImageAnnotatorClient
	log    zerolog.Logger
}

var _ ContractScanner = (*VisionScanner)(nil)

// NewVisionScanner creates a scanner with credentials from the environment.
func NewVisionScanner(ctx context.Context) (*VisionScanner, error) {
	const op = "NewVisionScanner"

	var client *vision.ImageAnnotatorClient
	var err error

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_CREDENTIALS")
		}
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_APPLICATION_CREDENTIALS")
		}
	} else {
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
	}

	return &VisionScanner{
		client: client,
		log:    logger.WithComponent("ocr"),
	}, nil
}

func (v *VisionScanner) ProcessPDF(ctx context.Context, pdfData io.Reader) (string, error) {
	result, err := v.Scan(ctx, pdfData)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

func (v *VisionScanner) Scan(ctx context.Context, pdfData io.Reader) (*ScanResult, error) {
	const op = "Scan"
	start := time.Now()

	pdfBytes, err := readPDF(pdfData)
	if err != nil {
		return nil, WrapOCRError(op, err, "")
	}

	req := &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  pdfBytes,
					MimeType: "application/pdf",
				},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := v.client.BatchAnnotateFiles(ctx, req)
	if err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.Responses) == 0 {
		return nil, WrapOCRError(op, ErrOCRFailed, "no response from Vision API")
	}

	fileResp := resp.Responses[0]
	if fileResp.Error != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", fileResp.Error.Message))
	}

	result, err := collectText(fileResp)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to process Vision API response")
	}

	result.ScannedAt = time.Now()
	result.Duration = result.ScannedAt.Sub(start)

	v.log.Info().
		Int("pages", result.PageCount).
		Float32("confidence", result.Confidence).
		Int("chars", len(result.Text)).
		Dur("duration", result.Duration).
		Msg("Contract scanned")
	if result.NeedsReview() {
		v.log.Warn().Float32("confidence", result.Confidence).Msg("Low OCR confidence, review the contract text")
	}

	return result, nil
}

// readPDF reads and checks the document before it is sent anywhere.
func readPDF(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSizeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF data: %w", err)
	}
	if len(data) > MaxFileSizeBytes {
		return nil, ErrPDFTooLarge
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return nil, ErrInvalidPDF
	}
	return data, nil
}

// collectText joins the page texts and averages the page confidences.
func collectText(fileResp *visionpb.AnnotateFileResponse) (*ScanResult, error) {
	pageCount := len(fileResp.Responses)
	if pageCount == 0 {
		return nil, ErrEmptyDocument
	}
	if pageCount > MaxPagesSync {
		return nil, fmt.Errorf("%w: document has %d pages", ErrTooManyPages, pageCount)
	}

	var (
		pages           []string
		confidenceSum   float32
		confidenceCount int
		languages       = make(map[string]bool)
	)

	for pageIdx, page := range fileResp.Responses {
		if page.Error != nil {
			return nil, fmt.Errorf("error processing page %d: %s", pageIdx+1, page.Error.Message)
		}
		annotation := page.FullTextAnnotation
		if annotation == nil {
			continue
		}

		pages = append(pages, annotation.Text)
		for _, p := range annotation.Pages {
			if p.Confidence > 0 {
				confidenceSum += p.Confidence
				confidenceCount++
			}
			if p.Property == nil {
				continue
			}
			for _, lang := range p.Property.DetectedLanguages {
				if lang.LanguageCode != "" {
					languages[lang.LanguageCode] = true
				}
			}
		}
	}

	text := CleanText(strings.Join(pages, "\n\n"))
	if text == "" {
		return nil, ErrEmptyDocument
	}

	result := &ScanResult{
		Text:      text,
		PageCount: pageCount,
	}
	if confidenceCount > 0 {
		result.Confidence = confidenceSum / float32(confidenceCount)
	}
	for lang := range languages {
		result.Languages = append(result.Languages, lang)
	}
	sort.Strings(result.Languages)
	return result, nil
}

var (
	spaceRun = regexp.MustCompile(`[ \t\f\v]+`)
	blankRun = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalizes OCR output: line endings become \n, runs of spaces collapse,
// lines are trimmed and more than one blank line in a row is squeezed to one.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Close closes the underlying Vision client.
func (v *VisionScanner) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}

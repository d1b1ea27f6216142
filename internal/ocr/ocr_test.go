package ocr

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/status"
)

func page(text string, confidence float32, langs ...string) *visionpb.AnnotateImageResponse {
	p := &visionpb.Page{Confidence: confidence}
	if len(langs) > 0 {
		p.Property = &visionpb.TextAnnotation_TextProperty{}
		for _, l := range langs {
			p.Property.DetectedLanguages = append(p.Property.DetectedLanguages,
				&visionpb.TextAnnotation_DetectedLanguage{LanguageCode: l})
		}
	}
	return &visionpb.AnnotateImageResponse{
		FullTextAnnotation: &visionpb.TextAnnotation{Text: text, Pages: []*visionpb.Page{p}},
	}
}

func TestCollectText(t *testing.T) {
	t.Run("joins pages", func(t *testing.T) {
		resp := &visionpb.AnnotateFileResponse{Responses: []*visionpb.AnnotateImageResponse{
			page("Installment Sale Contract\nContract No: SALE-1", 0.9, "en"),
			page("Buyer   signature", 0.7, "ar", "en"),
		}}

		result, err := collectText(resp)
		require.NoError(t, err)
		assert.Equal(t, "Installment Sale Contract\nContract No: SALE-1\n\nBuyer signature", result.Text)
		assert.Equal(t, 2, result.PageCount)
		assert.InDelta(t, 0.8, result.Confidence, 0.0001)
		assert.Equal(t, []string{"ar", "en"}, result.Languages)
		assert.False(t, result.NeedsReview())
	})

	t.Run("empty", func(t *testing.T) {
		_, err := collectText(&visionpb.AnnotateFileResponse{})
		assert.ErrorIs(t, err, ErrEmptyDocument)

		_, err = collectText(&visionpb.AnnotateFileResponse{Responses: []*visionpb.AnnotateImageResponse{page("  \n ", 0.5)}})
		assert.ErrorIs(t, err, ErrEmptyDocument)
	})

	t.Run("too many pages", func(t *testing.T) {
		resp := &visionpb.AnnotateFileResponse{}
		for i := 0; i < MaxPagesSync+1; i++ {
			resp.Responses = append(resp.Responses, page("x", 1))
		}
		_, err := collectText(resp)
		assert.ErrorIs(t, err, ErrTooManyPages)
	})

	t.Run("page error", func(t *testing.T) {
		resp := &visionpb.AnnotateFileResponse{Responses: []*visionpb.AnnotateImageResponse{
			{Error: &status.Status{Message: "bad image"}},
		}}
		_, err := collectText(resp)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad image")
	})
}

func TestReadPDF(t *testing.T) {
	data, err := readPDF(strings.NewReader("%PDF-1.7 body"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 body", string(data))

	_, err = readPDF(strings.NewReader("PK\x03\x04 zip"))
	assert.ErrorIs(t, err, ErrInvalidPDF)

	big := append([]byte("%PDF"), bytes.Repeat([]byte{' '}, MaxFileSizeBytes)...)
	_, err = readPDF(bytes.NewReader(big))
	assert.ErrorIs(t, err, ErrPDFTooLarge)
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses spaces", "Total  amount:\t1000", "Total amount: 1000"},
		{"normalizes line endings", "a\r\nb\rc", "a\nb\nc"},
		{"squeezes blank lines", "a\n\n\n\n b ", "a\n\nb"},
		{"trims", "  \n text \n ", "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}

func TestWrapOCRError(t *testing.T) {
	assert.NoError(t, WrapOCRError("Scan", nil, ""))

	err := WrapOCRError("Scan", ErrInvalidPDF, "missing header")
	assert.ErrorIs(t, err, ErrInvalidPDF)
	assert.Equal(t, "ocr: Scan failed: missing header: invalid or corrupted PDF document", err.Error())

	again := WrapOCRError("Other", err, "")
	var ocrErr *OCRError
	require.True(t, errors.As(again, &ocrErr))
	assert.Equal(t, "Scan", ocrErr.Op)

	low := &ScanResult{Confidence: 0.4}
	assert.True(t, low.NeedsReview())
}

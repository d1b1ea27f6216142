package ocr_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"installments/internal/ocr"
)

// Example reads a scanned contract and prints its text.
func Example() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	scanner, err := ocr.NewVisionScanner(ctx)
	if err != nil {
		log.Fatalf("Failed to create scanner: %v", err)
	}
	defer scanner.Close()

	pdfFile, err := os.Open("signed_contract.pdf")
	if err != nil {
		log.Fatalf("Failed to open PDF: %v", err)
	}
	defer pdfFile.Close()

	result, err := scanner.Scan(ctx, pdfFile)
	switch {
	case errors.Is(err, ocr.ErrTooManyPages):
		log.Printf("Split the contract into parts of at most %d pages", ocr.MaxPagesSync)
		return
	case err != nil:
		log.Fatalf("Failed to scan contract: %v", err)
	}

	if result.NeedsReview() {
		fmt.Println("Low confidence, check the text before saving it.")
	}
	fmt.Println(result.Text)
}

func ExampleCleanText() {
	raw := "Installment   Sale Contract\r\n\r\n\r\n  Contract No:  SALE-20240301-0001  "
	fmt.Println(ocr.CleanText(raw))
	// Output:
	// Installment Sale Contract
	//
	// Contract No: SALE-20240301-0001
}

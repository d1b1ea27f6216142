package ledger

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"installments/internal/reconciliation"
	"installments/internal/store"
	"installments/pkg/models"
)

// ExportVersion tags export documents.
const ExportVersion = "1.0"

// utf8BOM lets spreadsheet tools detect the encoding of exported CSV.
const utf8BOM = "\ufeff"

// ExportDocument is the full-state export.
type ExportDocument struct {
	Customers  []models.Customer `json:"customers"`
	Sales      []models.Sale     `json:"sales"`
	ExportDate time.Time         `json:"exportDate"`
	Version    string            `json:"version"`
}

// ImportResult reports what an import replaced.
type ImportResult struct {
	CustomersReplaced bool                    `json:"customersReplaced"`
	SalesReplaced     bool                    `json:"salesReplaced"`
	Customers         int                     `json:"customers"`
	Sales             int                     `json:"sales"`
	Resync            []reconciliation.Result `json:"-"`
}

func (s *Service) Export(ctx context.Context) ExportDocument {
	return ExportDocument{
		Customers:  s.records.Customers(ctx).Value,
		Sales:      s.records.Sales(ctx).Value,
		ExportDate: s.clock().UTC(),
		Version:    ExportVersion,
	}
}

// WriteExport writes the export document as indented JSON.
func (s *Service) WriteExport(ctx context.Context, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.Export(ctx)); err != nil {
		return fmt.Errorf("WriteExport: %w", err)
	}
	return nil
}

// ExportFileName is the suggested name for an export written at now.
func ExportFileName(now time.Time, ext string) string {
	return fmt.Sprintf("installments_export_%s.%s", now.Format("2006-01-02"), ext)
}

// Import replaces the customer and sale collections present in the document. A
// collection absent from the document (or null) is left untouched. Nothing is written
// unless the whole document decodes. Schedules are resynced afterwards.
func (s *Service) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	const op = "Import"

	var doc map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return ImportResult{}, fmt.Errorf("%s: %w: %v", op, ErrInvalidImport, err)
	}

	var (
		result    ImportResult
		customers []models.Customer
		sales     []models.Sale
	)
	if raw, ok := present(doc, "customers"); ok {
		if err := json.Unmarshal(raw, &customers); err != nil {
			return ImportResult{}, fmt.Errorf("%s: %w: customers: %v", op, ErrInvalidImport, err)
		}
		result.CustomersReplaced = true
		result.Customers = len(customers)
	}
	if raw, ok := present(doc, "sales"); ok {
		if err := json.Unmarshal(raw, &sales); err != nil {
			return ImportResult{}, fmt.Errorf("%s: %w: sales: %v", op, ErrInvalidImport, err)
		}
		result.SalesReplaced = true
		result.Sales = len(sales)
	}

	if result.CustomersReplaced {
		for i := range customers {
			customers[i] = customers[i].Normalized()
		}
		if err := s.records.SaveCustomers(ctx, customers); err != nil {
			return ImportResult{}, fmt.Errorf("%s: %w", op, err)
		}
		for _, c := range customers {
			s.mirrorSave(models.CollectionCustomers, c.ID, c)
		}
	}
	if result.SalesReplaced {
		if err := s.records.SaveSales(ctx, sales); err != nil {
			return ImportResult{}, fmt.Errorf("%s: %w", op, err)
		}
		for _, sale := range sales {
			s.mirrorSave(models.CollectionSales, sale.ID, sale)
		}
	}

	resync, err := s.ResyncAll(ctx)
	if err != nil {
		return result, fmt.Errorf("%s: %w", op, err)
	}
	result.Resync = resync

	s.log.Info().
		Bool("customers_replaced", result.CustomersReplaced).
		Bool("sales_replaced", result.SalesReplaced).
		Int("customers", result.Customers).
		Int("sales", result.Sales).
		Msg("Data imported")
	return result, nil
}

func present(doc map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := doc[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}

// ExportCSV writes customers and then sales as two CSV sections, prefixed with a
// UTF-8 byte order mark.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	const op = "ExportCSV"

	if _, err := io.WriteString(w, utf8BOM+"Customers\n"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"Name", "Phone", "Address"})
	for _, c := range s.records.Customers(ctx).Value {
		_ = cw.Write([]string{c.Name, c.Phone, c.Address})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := io.WriteString(w, "\n\nSales\n"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_ = cw.Write([]string{"Product", "Customer", "Total", "Paid", "Remaining", "Date"})
	for _, sale := range s.records.Sales(ctx).Value {
		_ = cw.Write([]string{
			sale.Product,
			sale.CustomerName,
			sale.TotalAmount.String(),
			sale.PaidAmount.String(),
			sale.Remaining().String(),
			sale.Date.Format("2006-01-02"),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ClearAll removes customers, sales and the activity log. Settings, users and
// backups are kept.
func (s *Service) ClearAll(ctx context.Context) error {
	const op = "ClearAll"

	customers := s.records.Customers(ctx).Value
	sales := s.records.Sales(ctx).Value

	if err := s.records.Remove(ctx, store.KeyCustomers, store.KeySales, store.KeyActivity); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, c := range customers {
		s.mirrorDelete(models.CollectionCustomers, c.ID)
	}
	for _, sale := range sales {
		s.mirrorDelete(models.CollectionSales, sale.ID)
	}

	s.log.Warn().
		Int("customers", len(customers)).
		Int("sales", len(sales)).
		Msg("All ledger data cleared")
	return nil
}

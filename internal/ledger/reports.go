package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"installments/internal/metrics"
	"installments/pkg/models"
)

func (s *Service) Dashboard(ctx context.Context) metrics.Dashboard {
	customers := s.records.Customers(ctx).Value
	return metrics.BuildDashboard(len(customers), s.records.Sales(ctx).Value, s.clock(), s.lateDays(ctx))
}

func (s *Service) Report(ctx context.Context, period metrics.Period) metrics.Report {
	return metrics.BuildReport(s.records.Sales(ctx).Value, s.clock(), s.lateDays(ctx), period)
}

// LateSales lists unpaid sales past the lateness threshold.
func (s *Service) LateSales(ctx context.Context) []SaleView {
	return s.ListSales(ctx, SaleFilter{Status: metrics.StatusLate})
}

func (s *Service) Upcoming(ctx context.Context) []metrics.Upcoming {
	return metrics.UpcomingInstallments(s.records.Sales(ctx).Value, s.clock(), metrics.UpcomingWindow)
}

// Activity returns the audit log newest first, optionally only one type.
func (s *Service) Activity(ctx context.Context, kind models.ActivityType) []models.Activity {
	entries := s.records.Activity(ctx).Value
	if kind == "" {
		return entries
	}
	filtered := make([]models.Activity, 0, len(entries))
	for _, e := range entries {
		if e.Type == kind {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

func (s *Service) Settings(ctx context.Context) models.Settings {
	return s.records.Settings(ctx).Value
}

// UpdateSettings merges a partial JSON settings object over the stored settings.
// Unknown keys and out-of-range values are rejected.
func (s *Service) UpdateSettings(ctx context.Context, patch []byte) (models.Settings, error) {
	const op = "UpdateSettings"

	settings := s.records.Settings(ctx).Value
	dec := json.NewDecoder(bytes.NewReader(patch))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&settings); err != nil {
		return models.Settings{}, NewValidationError("settings", string(patch), err.Error())
	}
	if err := s.check(settings); err != nil {
		return models.Settings{}, err
	}

	if err := s.records.SaveSettings(ctx, settings); err != nil {
		return models.Settings{}, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info().Str("patch", string(patch)).Msg("Settings updated")
	return settings, nil
}

// SearchResult holds the matches of a global search.
type SearchResult struct {
	Customers []models.Customer `json:"customers"`
	Sales     []models.Sale     `json:"sales"`
}

// Empty reports whether nothing matched.
func (r SearchResult) Empty() bool {
	return len(r.Customers) == 0 && len(r.Sales) == 0
}

// Search matches customers by name, phone or address and sales by customer name or
// product, ignoring case.
func (s *Service) Search(ctx context.Context, query string) SearchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	result := SearchResult{Customers: []models.Customer{}, Sales: []models.Sale{}}
	if q == "" {
		return result
	}

	for _, c := range s.records.Customers(ctx).Value {
		if containsAny(q, c.Name, c.Phone, c.Address) {
			result.Customers = append(result.Customers, c)
		}
	}
	for _, sale := range s.records.Sales(ctx).Value {
		if containsAny(q, sale.CustomerName, sale.Product) {
			result.Sales = append(result.Sales, sale)
		}
	}
	return result
}

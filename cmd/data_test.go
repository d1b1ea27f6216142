package cmd

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"installments/internal/ledger"
	"installments/internal/logger"
	"installments/internal/reconciliation"
	"installments/internal/store"
)

func TestPrintResync(t *testing.T) {
	logger.Silence()
	prev := current
	current = &app{ledger: ledger.New(store.NewRecords(store.NewMemoryKV()))}
	t.Cleanup(func() { current = prev })

	results := []reconciliation.Result{
		{SaleID: "SALE-20240301-0001", Changed: true, PaidBefore: 0, PaidAfter: 1},
		{SaleID: "SALE-20240301-0002", Changed: false, PaidBefore: 2, PaidAfter: 2},
		{SaleID: "SALE-20240301-0003", Changed: true, PaidBefore: 3, PaidAfter: 2, UnattributedCredit: decimal.NewFromInt(250)},
	}

	var out bytes.Buffer
	changed := printResync(&out, results)

	assert.Equal(t, 2, changed)
	text := out.String()
	assert.Contains(t, text, "SALE-20240301-0001: paid installments 0 -> 1\n")
	assert.Contains(t, text, "SALE-20240301-0003: paid installments 3 -> 2 (unattributed credit ")
	assert.NotContains(t, text, "SALE-20240301-0002")
	assert.NotContains(t, text, "%!")
}

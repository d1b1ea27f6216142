package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"installments/internal/logger"
	"installments/pkg/models"
)

func TestMain(m *testing.M) {
	logger.Silence()
	m.Run()
}

// backends runs fn against every KV implementation.
func backends(t *testing.T, fn func(t *testing.T, kv KV)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryKV())
	})
	t.Run("sqlite", func(t *testing.T) {
		kv, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = kv.Close() })
		fn(t, kv)
	})
}

func TestKV(t *testing.T) {
	ctx := context.Background()

	backends(t, func(t *testing.T, kv KV) {
		_, ok, err := kv.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, kv.Set(ctx, KeyCustomers, "[]"))
		require.NoError(t, kv.Set(ctx, KeyCustomers, `[{"id":"1"}]`))
		v, ok, err := kv.Get(ctx, KeyCustomers)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `[{"id":"1"}]`, v)

		require.NoError(t, kv.Set(ctx, PrefixAutoBackup+"2024-03-02", "{}"))
		require.NoError(t, kv.Set(ctx, PrefixAutoBackup+"2024-03-01", "{}"))
		require.NoError(t, kv.Set(ctx, "installmentsXbackup_1", "{}"))
		require.NoError(t, kv.Set(ctx, PrefixManualBackup+"1700000000000", "{}"))

		keys, err := kv.Keys(ctx, PrefixAutoBackup)
		require.NoError(t, err)
		assert.Equal(t, []string{PrefixAutoBackup + "2024-03-01", PrefixAutoBackup + "2024-03-02"}, keys)

		keys, err = kv.Keys(ctx, PrefixManualBackup)
		require.NoError(t, err)
		assert.Equal(t, []string{PrefixManualBackup + "1700000000000"}, keys)

		require.NoError(t, kv.Delete(ctx, KeyCustomers, "never-stored"))
		_, ok, err = kv.Get(ctx, KeyCustomers)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMemoryKVClosed(t *testing.T) {
	kv := NewMemoryKV()
	require.NoError(t, kv.Close())

	_, _, err := kv.Get(context.Background(), KeySales)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, kv.Set(context.Background(), KeySales, "[]"), ErrClosed)
}

func TestRecordsFallback(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	records := NewRecords(kv)

	t.Run("missing collections are empty", func(t *testing.T) {
		d := records.Sales(ctx)
		assert.False(t, d.Fallback())
		assert.NotNil(t, d.Value)
		assert.Empty(t, d.Value)
	})

	t.Run("malformed collection only affects itself", func(t *testing.T) {
		require.NoError(t, kv.Set(ctx, KeySales, "{not json"))
		require.NoError(t, records.SaveCustomers(ctx, []models.Customer{{ID: "c1", Name: "Ali"}}))

		sales := records.Sales(ctx)
		assert.True(t, sales.Fallback())
		assert.ErrorIs(t, sales.Err, ErrMalformedRecord)
		assert.Empty(t, sales.Value)

		customers := records.Customers(ctx)
		require.NoError(t, customers.Err)
		require.Len(t, customers.Value, 1)
		assert.Equal(t, models.CategoryNormal, customers.Value[0].Category)
	})

	t.Run("settings merge over defaults", func(t *testing.T) {
		require.NoError(t, kv.Set(ctx, KeySettings, `{"lateDays":45,"darkMode":true}`))

		s := records.Settings(ctx).Value
		assert.Equal(t, 45, s.LateDays)
		assert.True(t, s.DarkMode)
		assert.Equal(t, models.DefaultSettings().ItemsPerPage, s.ItemsPerPage)
		assert.Equal(t, models.DefaultSettings().BackupRetention, s.BackupRetention)
	})

	t.Run("malformed settings use defaults", func(t *testing.T) {
		require.NoError(t, kv.Set(ctx, KeySettings, "[]"))
		d := records.Settings(ctx)
		assert.True(t, d.Fallback())
		assert.Equal(t, models.DefaultSettings(), d.Value)
	})
}

func TestRecordsSalesRoundTrip(t *testing.T) {
	ctx := context.Background()
	records := NewRecords(NewMemoryKV())
	due := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)

	sale := models.Sale{
		ID:                "SALE-20240301-0001",
		CustomerID:        "c1",
		TotalAmount:       decimal.NewFromInt(1000),
		PaidAmount:        decimal.NewFromInt(500),
		Payments:          []models.Payment{{ID: "p1", Amount: decimal.NewFromInt(500), Date: due}},
		InstallmentsCount: 1,
		DueDate:           due,
		Date:              due,
	}
	require.NoError(t, records.SaveSales(ctx, []models.Sale{sale}))

	got := records.Sales(ctx)
	require.NoError(t, got.Err)
	require.Len(t, got.Value, 1)
	assert.True(t, got.Value[0].Remaining().Equal(decimal.NewFromInt(500)))
	assert.True(t, got.Value[0].DueDate.Equal(due))
}

func TestAppendActivity(t *testing.T) {
	ctx := context.Background()
	records := NewRecords(NewMemoryKV())

	for i := 0; i < models.MaxActivityEntries+5; i++ {
		require.NoError(t, records.AppendActivity(ctx, models.Activity{
			ID:   fmt.Sprintf("a%d", i),
			Type: models.ActivityPayment,
		}))
	}

	entries := records.Activity(ctx).Value
	require.Len(t, entries, models.MaxActivityEntries)
	assert.Equal(t, fmt.Sprintf("a%d", models.MaxActivityEntries+4), entries[0].ID)
	assert.Equal(t, "a5", entries[len(entries)-1].ID)
}

func TestForUpdateRefusesMalformed(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	records := NewRecords(kv)

	t.Run("readable collection", func(t *testing.T) {
		require.NoError(t, records.SaveCustomers(ctx, []models.Customer{{ID: "c1", Name: "Ali"}}))
		customers, err := records.Customers(ctx).ForUpdate()
		require.NoError(t, err)
		assert.Len(t, customers, 1)
	})

	t.Run("malformed collection", func(t *testing.T) {
		require.NoError(t, kv.Set(ctx, KeySales, `[{"id":"S1"`))
		sales, err := records.Sales(ctx).ForUpdate()
		assert.ErrorIs(t, err, ErrMalformedRecord)
		assert.Nil(t, sales)
	})

	t.Run("append keeps a malformed activity log", func(t *testing.T) {
		const broken = `[{"id":"a1","type":`
		require.NoError(t, kv.Set(ctx, KeyActivity, broken))

		err := records.AppendActivity(ctx, models.Activity{ID: "a2", Type: models.ActivityPayment})
		assert.ErrorIs(t, err, ErrMalformedRecord)

		raw, ok, err := kv.Get(ctx, KeyActivity)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, broken, raw)
	})
}

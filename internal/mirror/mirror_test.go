package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"installments/internal/config"
	"installments/internal/logger"
	"installments/pkg/models"
)

func TestMain(m *testing.M) {
	logger.Silence()
	m.Run()
}

// memoryMirror is an in-process Mirror for tests.
type memoryMirror struct {
	mu      sync.Mutex
	records map[string]map[string]json.RawMessage
	calls   int
	failIDs map[string]bool
}

func newMemoryMirror() *memoryMirror {
	return &memoryMirror{
		records: make(map[string]map[string]json.RawMessage),
		failIDs: make(map[string]bool),
	}
}

func (m *memoryMirror) LoadCollection(_ context.Context, collection string) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]json.RawMessage)
	for id, raw := range m.records[collection] {
		out[id] = raw
	}
	return out, nil
}

func (m *memoryMirror) SaveRecord(_ context.Context, collection, id string, record any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failIDs[id] {
		return newMirrorError("SaveRecord", collection, errors.New("remote unavailable"))
	}
	raw, err := encodeRecord(record)
	if err != nil {
		return err
	}
	if m.records[collection] == nil {
		m.records[collection] = make(map[string]json.RawMessage)
	}
	m.records[collection][id] = raw
	return nil
}

func (m *memoryMirror) DeleteRecord(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	delete(m.records[collection], id)
	return nil
}

func (m *memoryMirror) Subscribe(ctx context.Context, _ string, _ func(Change)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *memoryMirror) Close() error { return nil }

func (m *memoryMirror) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestDispatcher(t *testing.T) {
	t.Run("applies queued updates before close returns", func(t *testing.T) {
		remote := newMemoryMirror()
		d := NewDispatcher(remote, WithWorkers(2))

		d.SaveRecord(models.CollectionCustomers, "c1", models.Customer{ID: "c1", Name: "Ali"})
		d.SaveRecord(models.CollectionCustomers, "c2", models.Customer{ID: "c2", Name: "Sara"})
		require.NoError(t, d.Close(context.Background()))

		d2 := NewDispatcher(remote, WithWorkers(1))
		d2.DeleteRecord(models.CollectionCustomers, "c2")
		require.NoError(t, d2.Close(context.Background()))

		records, err := remote.LoadCollection(context.Background(), models.CollectionCustomers)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.JSONEq(t, `{"id":"c1","name":"Ali","phone":"","address":"","notes":"","category":""}`, string(records["c1"]))
	})

	t.Run("failures are dropped without retry", func(t *testing.T) {
		remote := newMemoryMirror()
		remote.failIDs["bad"] = true
		d := NewDispatcher(remote)

		d.SaveRecord(models.CollectionSales, "bad", map[string]string{"id": "bad"})
		d.SaveRecord(models.CollectionSales, "good", map[string]string{"id": "good"})
		require.NoError(t, d.Close(context.Background()))

		assert.Equal(t, 2, remote.callCount())
		records, _ := remote.LoadCollection(context.Background(), models.CollectionSales)
		assert.Contains(t, records, "good")
		assert.NotContains(t, records, "bad")
	})

	t.Run("updates after close are dropped", func(t *testing.T) {
		remote := newMemoryMirror()
		d := NewDispatcher(remote)
		require.NoError(t, d.Close(context.Background()))
		require.NoError(t, d.Close(context.Background()))

		d.SaveRecord(models.CollectionSales, "s1", map[string]string{})
		assert.Zero(t, remote.callCount())
	})

	t.Run("unencodable records are skipped", func(t *testing.T) {
		remote := newMemoryMirror()
		d := NewDispatcher(remote)
		d.SaveRecord(models.CollectionSales, "s1", make(chan int))
		require.NoError(t, d.Close(context.Background()))
		assert.Zero(t, remote.callCount())
	})
}

// blockingMirror holds every save until release is closed.
type blockingMirror struct {
	*memoryMirror
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingMirror) SaveRecord(ctx context.Context, collection, id string, record any) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.memoryMirror.SaveRecord(ctx, collection, id, record)
}

func TestDispatcherNeverBlocks(t *testing.T) {
	remote := &blockingMirror{
		memoryMirror: newMemoryMirror(),
		started:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	d := NewDispatcher(remote, WithWorkers(1), WithQueueSize(1))

	d.SaveRecord(models.CollectionSales, "s1", map[string]string{})
	<-remote.started
	d.SaveRecord(models.CollectionSales, "s2", map[string]string{})

	done := make(chan struct{})
	go func() {
		d.SaveRecord(models.CollectionSales, "s3", map[string]string{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SaveRecord blocked on a full queue")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)

	close(remote.release)
	require.Eventually(t, func() bool { return remote.callCount() == 2 }, time.Second, 5*time.Millisecond)

	records, _ := remote.LoadCollection(context.Background(), models.CollectionSales)
	assert.Contains(t, records, "s1")
	assert.Contains(t, records, "s2")
	assert.NotContains(t, records, "s3")
}

func TestPushAll(t *testing.T) {
	remote := newMemoryMirror()
	remote.failIDs["SALE-2"] = true

	pushed, err := PushAll(context.Background(), remote,
		[]models.Customer{{ID: "c1"}},
		[]models.Sale{{ID: "SALE-1"}, {ID: "SALE-2"}},
	)
	assert.Equal(t, 2, pushed)
	require.Error(t, err)

	var me *MirrorError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, models.CollectionSales, me.Collection)
}

func TestMirrorError(t *testing.T) {
	err := newMirrorError("SaveRecord", "sales", ErrMissingID)
	assert.ErrorIs(t, err, ErrMissingID)
	assert.Equal(t, "mirror: SaveRecord sales failed: record id is required", err.Error())

	assert.Same(t, err, newMirrorError("Other", "customers", err))
	assert.NoError(t, newMirrorError("SaveRecord", "sales", nil))
}

func TestNewDisabled(t *testing.T) {
	m, err := New(context.Background(), &config.Config{MirrorBackend: config.MirrorNone})
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = New(context.Background(), &config.Config{MirrorBackend: "ftp"})
	assert.Error(t, err)
}

func TestDecodeChange(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    bool
	}{
		{"matching collection", `{"collection":"sales","id":"S1","record":{"id":"S1"}}`, true},
		{"deletion", `{"collection":"sales","id":"S1","deleted":true}`, true},
		{"other collection", `{"collection":"customers","id":"c1"}`, false},
		{"missing id", `{"collection":"sales"}`, false},
		{"garbage", `not json`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := decodeChange(tt.payload, "sales")
			assert.Equal(t, tt.want, ok)
		})
	}
}

// fakeValues emulates the few range forms the sheets mirror uses.
type fakeValues struct {
	sheets map[string][][]interface{}
}

func newFakeValues() *fakeValues {
	return &fakeValues{sheets: make(map[string][][]interface{})}
}

func (f *fakeValues) EnsureSheet(_ context.Context, name string) error {
	if _, ok := f.sheets[name]; !ok {
		f.sheets[name] = [][]interface{}{sheetHeaders}
	}
	return nil
}

func splitRange(rangeSpec string) (string, int) {
	name, cells, _ := strings.Cut(rangeSpec, "!")
	var row, end int
	if _, err := fmt.Sscanf(cells, "A%d:C%d", &row, &end); err != nil {
		return name, 0
	}
	return name, row
}

func (f *fakeValues) Get(_ context.Context, rangeSpec string) ([][]interface{}, error) {
	name, _ := splitRange(rangeSpec)
	rows, ok := f.sheets[name]
	if !ok {
		return nil, fmt.Errorf("no sheet %s", name)
	}
	return rows, nil
}

func (f *fakeValues) Update(_ context.Context, rangeSpec string, values [][]interface{}) error {
	name, row := splitRange(rangeSpec)
	for len(f.sheets[name]) < row {
		f.sheets[name] = append(f.sheets[name], []interface{}{})
	}
	f.sheets[name][row-1] = values[0]
	return nil
}

func (f *fakeValues) Append(_ context.Context, rangeSpec string, values [][]interface{}) error {
	name, _ := splitRange(rangeSpec)
	f.sheets[name] = append(f.sheets[name], values...)
	return nil
}

func (f *fakeValues) Clear(_ context.Context, rangeSpec string) error {
	name, row := splitRange(rangeSpec)
	f.sheets[name][row-1] = []interface{}{}
	return nil
}

func TestSheetsMirror(t *testing.T) {
	ctx := context.Background()
	values := newFakeValues()
	m := newSheetsMirror(values)
	m.clock = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, m.SaveRecord(ctx, "customers", "c1", map[string]string{"name": "Ali"}))
	require.NoError(t, m.SaveRecord(ctx, "customers", "c2", map[string]string{"name": "Sara"}))
	require.NoError(t, m.SaveRecord(ctx, "customers", "c1", map[string]string{"name": "Ali Hassan"}))

	rows := values.sheets["customers"]
	require.Len(t, rows, 3, "header plus one row per record")
	assert.Equal(t, "2024-03-01T12:00:00Z", rows[1][2])

	records, err := m.LoadCollection(ctx, "customers")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ali Hassan"}`, string(records["c1"]))

	require.NoError(t, m.DeleteRecord(ctx, "customers", "c2"))
	require.NoError(t, m.DeleteRecord(ctx, "customers", "missing"))
	records, err = m.LoadCollection(ctx, "customers")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	assert.ErrorIs(t, m.SaveRecord(ctx, "customers", "", nil), ErrMissingID)
}

func TestSheetsMirrorSkipsMalformedRows(t *testing.T) {
	values := newFakeValues()
	values.sheets["sales"] = [][]interface{}{
		sheetHeaders,
		{"S1", `{"id":"S1"}`},
		{"S2", `{broken`},
		{},
		{"S3"},
	}
	m := newSheetsMirror(values)

	records, err := m.LoadCollection(context.Background(), "sales")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Contains(t, records, "S1")
}

func TestDiffRecords(t *testing.T) {
	before := map[string]json.RawMessage{
		"a": json.RawMessage(`1`),
		"b": json.RawMessage(`2`),
		"c": json.RawMessage(`3`),
	}
	after := map[string]json.RawMessage{
		"a": json.RawMessage(`1`),
		"b": json.RawMessage(`20`),
		"d": json.RawMessage(`4`),
	}

	changes := diffRecords("sales", before, after)
	require.Len(t, changes, 3)
	assert.Equal(t, "b", changes[0].ID)
	assert.Equal(t, "c", changes[1].ID)
	assert.True(t, changes[1].Deleted)
	assert.Equal(t, "d", changes[2].ID)
	assert.False(t, changes[2].Deleted)
}

func TestExtractSpreadsheetID(t *testing.T) {
	id, err := extractSpreadsheetID("https://docs.google.com/spreadsheets/d/1AbC-d_9/edit#gid=0")
	require.NoError(t, err)
	assert.Equal(t, "1AbC-d_9", id)

	_, err = extractSpreadsheetID("https://example.com/sheet")
	assert.ErrorIs(t, err, ErrInvalidSheetURL)
}

package loader

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/pinterest-pipeline/internal/database"
	"github.com/maltedev/pinterest-pipeline/internal/models"
)

// memStore is an in-memory PinStore with the same upsert semantics as the
// relational store: rows keyed by dedup key, id and scraped_at fixed on
// first insert, everything else overwritten.
type memStore struct {
	rows      map[string]*database.PinRow
	nextID    int64
	failKeys  map[string]bool
	schemaErr error
	statsErr  error
}

func newMemStore() *memStore {
	return &memStore{
		rows:     make(map[string]*database.PinRow),
		nextID:   1,
		failKeys: make(map[string]bool),
	}
}

func (m *memStore) EnsureSchema(ctx context.Context) error {
	return m.schemaErr
}

func (m *memStore) UpsertPin(ctx context.Context, row *database.PinRow) (bool, error) {
	if m.failKeys[row.DedupKey] {
		return false, fmt.Errorf("upsert rejected for %s", row.DedupKey)
	}

	if existing, ok := m.rows[row.DedupKey]; ok {
		row.ID = existing.ID
		row.ScrapedAt = existing.ScrapedAt
		m.rows[row.DedupKey] = row
		return false, nil
	}

	row.ID = m.nextID
	m.nextID++
	m.rows[row.DedupKey] = row
	return true, nil
}

func (m *memStore) Stats(ctx context.Context) (database.StoreStats, error) {
	if m.statsErr != nil {
		return database.StoreStats{}, m.statsErr
	}

	stats := database.StoreStats{TotalRecords: len(m.rows)}
	var total int
	for _, row := range m.rows {
		if row.ImageURL != "" {
			stats.RecordsWithImage++
		}
		total += row.SaveCount
	}
	if len(m.rows) > 0 {
		stats.AverageSaveCount = float64(total) / float64(len(m.rows))
	}
	return stats, nil
}

func cleanedBatch(pins ...models.CleanedPin) *models.CleanedBatch {
	return &models.CleanedBatch{
		Batch: models.Batch{Query: "test", MaxPins: 100, StartedAt: time.Now()},
		Pins:  pins,
	}
}

func cleanedPin(link string, saveCount int) models.CleanedPin {
	return models.CleanedPin{
		Title:     "Pin " + link,
		PinLink:   link,
		ImageURL:  "https://i.pinimg.com/" + link + ".jpg",
		BoardName: models.DefaultUnknown,
		Author:    models.DefaultUnknown,
		SaveCount: saveCount,
		ScrapedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestLoadInsertsNewRecords(t *testing.T) {
	store := newMemStore()
	l := New(store)

	result, err := l.Load(context.Background(), cleanedBatch(
		cleanedPin("p1", 10), cleanedPin("p2", 20)))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 2, result.RowDelta())
}

func TestLoadIsIdempotent(t *testing.T) {
	store := newMemStore()
	l := New(store)
	batch := cleanedBatch(cleanedPin("p1", 10), cleanedPin("p2", 20))

	first, err := l.Load(context.Background(), batch)
	require.NoError(t, err)
	second, err := l.Load(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, 2, first.Inserted)
	assert.Equal(t, 2, second.Updated)
	assert.Equal(t, 0, second.Inserted)
	assert.Len(t, store.rows, 2)
}

func TestLoadUpdatePreservesIdentity(t *testing.T) {
	store := newMemStore()
	l := New(store)

	_, err := l.Load(context.Background(), cleanedBatch(cleanedPin("p1", 10)))
	require.NoError(t, err)

	original := *store.rows["p1"]

	// Same pin re-scraped later with a higher save count.
	updated := cleanedPin("p1", 25)
	updated.ScrapedAt = original.ScrapedAt.Add(24 * time.Hour)

	result, err := l.Load(context.Background(), cleanedBatch(updated))
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)

	row := store.rows["p1"]
	assert.Equal(t, original.ID, row.ID)
	assert.Equal(t, original.ScrapedAt, row.ScrapedAt)
	assert.Equal(t, 25, row.SaveCount)
}

func TestLoadSkipsFailedRecords(t *testing.T) {
	store := newMemStore()
	store.failKeys["p2"] = true
	l := New(store)

	result, err := l.Load(context.Background(), cleanedBatch(
		cleanedPin("p1", 1), cleanedPin("p2", 2), cleanedPin("p3", 3)))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, store.rows, "p1")
	assert.Contains(t, store.rows, "p3")
	assert.NotContains(t, store.rows, "p2")
}

func TestLoadSchemaFailureIsFatal(t *testing.T) {
	store := newMemStore()
	store.schemaErr = errors.New("connection refused")
	l := New(store)

	_, err := l.Load(context.Background(), cleanedBatch(cleanedPin("p1", 1)))
	assert.Error(t, err)
	assert.Empty(t, store.rows)
}

func TestLoadSharesLoadedAtAcrossBatch(t *testing.T) {
	store := newMemStore()
	l := New(store)
	loadedAt := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return loadedAt }

	_, err := l.Load(context.Background(), cleanedBatch(
		cleanedPin("p1", 1), cleanedPin("p2", 2)))
	require.NoError(t, err)

	assert.Equal(t, loadedAt, store.rows["p1"].LoadedAt)
	assert.Equal(t, loadedAt, store.rows["p2"].LoadedAt)
}

func TestVerify(t *testing.T) {
	store := newMemStore()
	l := New(store)

	_, err := l.Load(context.Background(), cleanedBatch(
		cleanedPin("p1", 10), cleanedPin("p2", 30)))
	require.NoError(t, err)

	stats, err := l.Verify(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalRecords)
	assert.Equal(t, 2, stats.RecordsWithImage)
	assert.InDelta(t, 20.0, stats.AverageSaveCount, 0.001)
}

func TestVerifyFailure(t *testing.T) {
	store := newMemStore()
	store.statsErr = errors.New("connection refused")
	l := New(store)

	_, err := l.Verify(context.Background())
	assert.Error(t, err)
}

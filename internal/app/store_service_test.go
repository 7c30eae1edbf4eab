package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/rows"
)

func shotAt(t time.Time, id string) *rows.Shot {
	ping := rows.ToUnixSeconds(t)
	return &rows.Shot{PingTime: ping, ReturnTime: ping + 2.5, TransponderID: id, TT: 2.5, XC: 80, SNR: rows.Float(20), TAT: rows.Float(0.1)}
}

func TestStoreService_ExportShots(t *testing.T) {
	stores := newMemStores()
	svc := NewStoreService(stores, &mockProductFetcher{})
	ctx := context.Background()

	day1 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	_, err := stores.shots.WriteRows(ctx, []*rows.Shot{
		shotAt(day1, "IR5209"), shotAt(day1.Add(time.Minute), "IR5210"), shotAt(day2, "IR5209"),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := svc.ExportShots(ctx, testScope, day1, day1, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, ShotColumns, recs[0])
	assert.Equal(t, "IR5209", recs[1][0])
	assert.Equal(t, "2.5", recs[1][1])

	_, err = svc.ExportShots(ctx, testScope, day2, day1, &buf)
	assert.True(t, errors.Is(err, asset.ErrConfig))
}

func TestStoreService_Dates(t *testing.T) {
	stores := newMemStores()
	svc := NewStoreService(stores, &mockProductFetcher{})
	ctx := context.Background()

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := stores.positions.WriteRows(ctx, []*rows.Position{
		{Timestamp: day.Add(time.Hour)}, {Timestamp: day.Add(2 * time.Hour)}, {Timestamp: day.AddDate(0, 0, 2)},
	})
	require.NoError(t, err)

	dates, err := svc.Dates(ctx, testScope, rows.KindPosition)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day, day.AddDate(0, 0, 2)}, dates)

	_, err = svc.Dates(ctx, testScope, rows.Kind("bogus"))
	assert.True(t, errors.Is(err, asset.ErrConfig))
}

func TestStoreService_DeleteRange(t *testing.T) {
	stores := newMemStores()
	svc := NewStoreService(stores, &mockProductFetcher{})
	ctx := context.Background()

	day := time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)
	_, err := stores.shotsPre.WriteRows(ctx, []*rows.Shot{shotAt(day, "A"), shotAt(day.AddDate(0, 0, 1), "A")})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRange(ctx, testScope, rows.KindShotPre, rows.Day(day), rows.Day(day)))
	assert.Equal(t, 1, stores.shotsPre.count())
	assert.Equal(t, 1, stores.shotsPre.deletes)

	err = svc.DeleteRange(ctx, testScope, rows.Kind("bogus"), day, day)
	assert.ErrorIs(t, err, asset.ErrConfig)
	err = svc.DeleteRange(ctx, testScope, rows.KindShot, day, day.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, asset.ErrConfig)
}

func TestStoreService_ConsolidateAndProducts(t *testing.T) {
	stores := newMemStores()
	svc := NewStoreService(stores, &mockProductFetcher{})
	ctx := context.Background()

	require.NoError(t, svc.Consolidate(ctx, testScope))
	assert.Equal(t, 1, stores.consolidated)

	set, err := svc.FetchProducts(ctx, time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), set.Day)
}

package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SessionBreak/internal/domain/models"
	domrepo "SessionBreak/internal/domain/repository"
	"SessionBreak/pkg/cache"
)

func TestCachePositionBook(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	book := NewCachePositionBook(mc, "XAUUSD", time.Hour)

	got, err := book.Get(ctx, "GoldenEye")
	require.NoError(t, err)
	assert.Nil(t, got)

	t0 := time.Date(2024, 3, 5, 19, 0, 0, 0, time.UTC)
	require.NoError(t, book.Put(ctx, models.Position{ID: "b", Label: "Area51", Status: models.PositionOpen, OpenedAt: t0.Add(time.Hour)}))
	require.NoError(t, book.Put(ctx, models.Position{ID: "a", Label: "GoldenEye", Status: models.PositionPending, OpenedAt: t0}))
	assert.Error(t, book.Put(ctx, models.Position{ID: "c"}))

	got, err = book.Get(ctx, "GoldenEye")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, models.PositionPending, got.Status)

	list, err := book.List(ctx, []string{"GoldenEye", "Area51", "Missing"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	require.NoError(t, book.Remove(ctx, "GoldenEye"))
	got, err = book.Get(ctx, "GoldenEye")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheStateStore(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	store := NewCacheStateStore(mc, time.Hour)

	snaps, err := store.Load(ctx, "XAUUSD")
	require.NoError(t, err)
	assert.Nil(t, snaps)

	occ := time.Date(2024, 3, 5, 16, 0, 0, 0, time.UTC)
	in := []models.SessionSnapshot{{
		Label:      "GoldenEye",
		State:      models.StateRangeConfirmed,
		Occurrence: occ,
		Range:      models.Range{High: 2320.5, Low: 2315.5, IsSet: true},
		Evaluated:  true,
		Entries:    1,
	}}
	require.NoError(t, store.Save(ctx, "XAUUSD", in))
	out, err := store.Load(ctx, "XAUUSD")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.StateRangeConfirmed, out[0].State)
	assert.True(t, out[0].Occurrence.Equal(occ))
	assert.Equal(t, in[0].Range, out[0].Range)
	assert.Equal(t, 1, out[0].Entries)
}

func TestBarInsertSkipsIncompleteBars(t *testing.T) {
	ts := time.Date(2024, 3, 5, 16, 0, 0, 0, time.UTC)
	q, args := barInsert("sessionbreak.bars", domrepo.TF30m, []models.Bar{
		{Symbol: "XAUUSD", Time: ts, Open: 1, High: 2, Low: 0.5, Close: 1.5},
		{Symbol: "", Time: ts},
		{Symbol: "XAUUSD"},
	})
	assert.Equal(t, 1, strings.Count(q, "(?, ?, ?, ?, ?, ?, ?, ?)"))
	require.Len(t, args, 8)
	assert.Equal(t, "30m", args[1])
	assert.Equal(t, ts, args[2])
}

func TestDecisionInsert(t *testing.T) {
	q, args := decisionInsert("sessionbreak.decisions", []models.Decision{
		{Label: "GoldenEye", Kind: models.DecisionEntry, Direction: models.Buy},
		{Label: "Area51", Kind: models.DecisionRangeConfirmed},
	})
	assert.True(t, strings.HasPrefix(q, "INSERT INTO sessionbreak.decisions"))
	assert.Len(t, args, 24)
	assert.Equal(t, "entry", args[3])
	assert.Equal(t, "buy", args[4])
	assert.Equal(t, "", args[16])
}

func TestQuoteMessage(t *testing.T) {
	ts := time.Date(2024, 3, 5, 19, 0, 0, 0, time.UTC)
	m := NewQuoteMessage(&models.Quote{Symbol: "XAUUSD", Bid: 2320, Ask: 2320.2, Time: ts})
	assert.Equal(t, ts.UnixMilli(), m.T)
	assert.Equal(t, "XAUUSD", m.Symbol)
}

func TestSchema(t *testing.T) {
	stmts := Schema("sessionbreak")
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[1], "sessionbreak.bars")
	assert.Contains(t, stmts[2], "sessionbreak.decisions")
}

package features

import (
	"time"

	"SessionBreak/internal/domain/models"
	"SessionBreak/internal/domain/repository"
)

// BarBuilder aggregates quotes into bars of one timeframe. Bars are built from
// the bid, the way the venue charts them.
type BarBuilder struct {
	symbol  string
	tf      repository.Timeframe
	forming *models.Bar
}

func NewBarBuilder(symbol string, tf repository.Timeframe) *BarBuilder {
	if !repository.IsValidTimeframe(tf) {
		tf = repository.DefaultTimeframe()
	}
	return &BarBuilder{symbol: symbol, tf: tf}
}

func (b *BarBuilder) Timeframe() repository.Timeframe { return b.tf }

// Add folds q into the forming bar. When q opens a later bucket the previous
// bar is returned as closed. Quotes older than the forming bucket are ignored.
func (b *BarBuilder) Add(q models.Quote) (models.Bar, bool) {
	price := q.Bid
	if price <= 0 {
		price = q.Mid()
	}
	bucket := AlignToTimeframe(q.Time, b.tf)

	if b.forming == nil {
		b.forming = b.open(bucket, price)
		return models.Bar{}, false
	}
	switch {
	case bucket.Equal(b.forming.Time):
		if price > b.forming.High {
			b.forming.High = price
		}
		if price < b.forming.Low {
			b.forming.Low = price
		}
		b.forming.Close = price
		b.forming.Volume++
		return models.Bar{}, false
	case bucket.After(b.forming.Time):
		closed := *b.forming
		b.forming = b.open(bucket, price)
		return closed, true
	default:
		return models.Bar{}, false
	}
}

// Forming returns a copy of the bar under construction.
func (b *BarBuilder) Forming() (models.Bar, bool) {
	if b.forming == nil {
		return models.Bar{}, false
	}
	return *b.forming, true
}

// Flush closes the forming bar regardless of time.
func (b *BarBuilder) Flush() (models.Bar, bool) {
	if b.forming == nil {
		return models.Bar{}, false
	}
	closed := *b.forming
	b.forming = nil
	return closed, true
}

func (b *BarBuilder) open(bucket time.Time, price float64) *models.Bar {
	return &models.Bar{Symbol: b.symbol, Time: bucket, Open: price, High: price, Low: price, Close: price, Volume: 1}
}

// AlignToTimeframe truncates t to the start of its timeframe bucket in UTC.
func AlignToTimeframe(t time.Time, tf repository.Timeframe) time.Time {
	return t.UTC().Truncate(tf.Duration())
}

// AlignFromTo rounds a query range to bucket boundaries.
func AlignFromTo(from, to time.Time, tf repository.Timeframe) (time.Time, time.Time) {
	return AlignToTimeframe(from, tf), AlignToTimeframe(to, tf)
}

// Package pg persists metrics samples and anomaly events to Postgres.
package pg

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	anomalyDomain "github.com/JudyChang-TW/liquidity-crunch-monitor/business/anomaly/domain"
	liqDomain "github.com/JudyChang-TW/liquidity-crunch-monitor/business/liquidity/domain"
)

// Column scales follow the relational schema: prices numeric(20,8), USD
// notionals numeric(20,2), basis points numeric(10,4), imbalance
// numeric(6,4). Values are banker's-rounded to the column scale on write.

// LiquiditySnapshotRow is one persisted metrics sample.
type LiquiditySnapshotRow struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	SnapshotID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	Symbol     string    `gorm:"size:20;not null;index:idx_snapshots_symbol_ts"`
	Exchange   string    `gorm:"size:50;not null"`
	Timestamp  time.Time `gorm:"not null;index:idx_snapshots_symbol_ts"`

	MidPrice  decimal.Decimal `gorm:"type:numeric(20,8)"`
	SpreadBps decimal.Decimal `gorm:"type:numeric(10,4)"`
	BidLevels int
	AskLevels int

	Depth10BpsUSD   decimal.Decimal `gorm:"type:numeric(20,2)"`
	Depth10BpsBase  decimal.Decimal `gorm:"type:numeric(20,8)"`
	Depth50BpsUSD   decimal.Decimal `gorm:"type:numeric(20,2)"`
	Depth50BpsBase  decimal.Decimal `gorm:"type:numeric(20,8)"`
	Depth100BpsUSD  decimal.Decimal `gorm:"type:numeric(20,2)"`
	Depth100BpsBase decimal.Decimal `gorm:"type:numeric(20,8)"`

	Imbalance decimal.Decimal `gorm:"type:numeric(6,4)"`

	Slippage100kBps decimal.NullDecimal `gorm:"type:numeric(10,4)"`
	Slippage100kUSD decimal.NullDecimal `gorm:"type:numeric(20,2)"`
	Slippage500kBps decimal.NullDecimal `gorm:"type:numeric(10,4)"`
	Slippage500kUSD decimal.NullDecimal `gorm:"type:numeric(20,2)"`
	Slippage1mBps   decimal.NullDecimal `gorm:"type:numeric(10,4)"`
	Slippage1mUSD   decimal.NullDecimal `gorm:"type:numeric(20,2)"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName sets the table for LiquiditySnapshotRow.
func (LiquiditySnapshotRow) TableName() string {
	return "liquidity_snapshots"
}

// AnomalyEventRow is one persisted anomaly event.
type AnomalyEventRow struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	EventID    uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	Symbol     string    `gorm:"size:20;not null;index:idx_events_symbol_ts"`
	Exchange   string    `gorm:"size:50;not null"`
	DetectedAt time.Time `gorm:"not null;index:idx_events_symbol_ts"`
	Severity   string    `gorm:"size:10;not null"`
	Reason     string    `gorm:"type:text"`

	ZScoreSpreadBps     decimal.NullDecimal `gorm:"type:numeric(10,4)"`
	ZScoreDepth10BpsUSD decimal.NullDecimal `gorm:"type:numeric(10,4)"`
	ZScoreImbalance     decimal.NullDecimal `gorm:"type:numeric(10,4)"`
	MaxZScore           decimal.Decimal     `gorm:"type:numeric(10,4)"`

	MidPrice      decimal.Decimal `gorm:"type:numeric(20,8)"`
	SpreadBps     decimal.Decimal `gorm:"type:numeric(10,4)"`
	Depth10BpsUSD decimal.Decimal `gorm:"type:numeric(20,2)"`
	Imbalance     decimal.Decimal `gorm:"type:numeric(6,4)"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName sets the table for AnomalyEventRow.
func (AnomalyEventRow) TableName() string {
	return "anomaly_events"
}

// Fixed notional sizes mapped to the slippage column triplets.
var (
	notional100k = decimal.NewFromInt(100_000)
	notional500k = decimal.NewFromInt(500_000)
	notional1m   = decimal.NewFromInt(1_000_000)
)

// NewSnapshotRow maps a sample to its row, generating the snapshot id.
func NewSnapshotRow(s *liqDomain.Sample) *LiquiditySnapshotRow {
	row := &LiquiditySnapshotRow{
		SnapshotID: uuid.New(),
		Symbol:     s.Symbol,
		Exchange:   s.Exchange,
		Timestamp:  s.Timestamp,
		MidPrice:   s.Mid.RoundBank(8),
		SpreadBps:  s.SpreadBps.RoundBank(4),
		BidLevels:  s.BidLevels,
		AskLevels:  s.AskLevels,
		Imbalance:  s.Imbalance.RoundBank(4),
	}

	if b := s.DepthBand(10); b != nil {
		row.Depth10BpsUSD = b.TotalUSD().RoundBank(2)
		row.Depth10BpsBase = b.TotalQty().RoundBank(8)
	}
	if b := s.DepthBand(50); b != nil {
		row.Depth50BpsUSD = b.TotalUSD().RoundBank(2)
		row.Depth50BpsBase = b.TotalQty().RoundBank(8)
	}
	if b := s.DepthBand(100); b != nil {
		row.Depth100BpsUSD = b.TotalUSD().RoundBank(2)
		row.Depth100BpsBase = b.TotalQty().RoundBank(8)
	}

	row.Slippage100kBps, row.Slippage100kUSD = slippageColumns(s, notional100k)
	row.Slippage500kBps, row.Slippage500kUSD = slippageColumns(s, notional500k)
	row.Slippage1mBps, row.Slippage1mUSD = slippageColumns(s, notional1m)

	return row
}

// slippageColumns picks the worse of the buy and sell estimates for a
// notional size. Insufficient liquidity on both sides persists as NULL.
func slippageColumns(s *liqDomain.Sample, notional decimal.Decimal) (decimal.NullDecimal, decimal.NullDecimal) {
	buy := s.SlippageFor(notional, liqDomain.SideBuy)
	sell := s.SlippageFor(notional, liqDomain.SideSell)

	worst := pickWorst(buy, sell)
	if worst == nil {
		return decimal.NullDecimal{}, decimal.NullDecimal{}
	}

	usd := worst.SlippageAbs.Mul(worst.FilledQty)
	return decimal.NullDecimal{Decimal: worst.SlippageBps.RoundBank(4), Valid: true},
		decimal.NullDecimal{Decimal: usd.RoundBank(2), Valid: true}
}

func pickWorst(a, b *liqDomain.SlippageEstimate) *liqDomain.SlippageEstimate {
	usable := func(e *liqDomain.SlippageEstimate) bool {
		return e != nil && !e.Insufficient
	}

	switch {
	case usable(a) && usable(b):
		if a.SlippageBps.GreaterThanOrEqual(b.SlippageBps) {
			return a
		}
		return b
	case usable(a):
		return a
	case usable(b):
		return b
	}
	return nil
}

// NewEventRow maps an anomaly event to its row, generating the event id.
func NewEventRow(ev *anomalyDomain.Event) *AnomalyEventRow {
	row := &AnomalyEventRow{
		EventID:       uuid.New(),
		Symbol:        ev.Symbol,
		Exchange:      ev.Exchange,
		DetectedAt:    ev.DetectedAt,
		Severity:      string(ev.Severity),
		Reason:        ev.Reason,
		MaxZScore:     decimal.NewFromFloat(ev.MaxZScore).RoundBank(4),
		MidPrice:      ev.State.Mid.RoundBank(8),
		SpreadBps:     ev.State.SpreadBps.RoundBank(4),
		Depth10BpsUSD: ev.State.Depth10BpsUSD.RoundBank(2),
		Imbalance:     ev.State.Imbalance.RoundBank(4),
	}

	row.ZScoreSpreadBps = zColumn(ev.ZScores, "spread_bps")
	row.ZScoreDepth10BpsUSD = zColumn(ev.ZScores, "depth_10bps_usd")
	row.ZScoreImbalance = zColumn(ev.ZScores, "imbalance")

	return row
}

func zColumn(zScores map[string]float64, name string) decimal.NullDecimal {
	z, ok := zScores[name]
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(z).RoundBank(4), Valid: true}
}

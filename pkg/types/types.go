package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe identifies one of the three aggregation granularities
type Timeframe string

const (
	TimeframeFine   Timeframe = "fine"   // canonical input granularity (10s default)
	TimeframeMid    Timeframe = "mid"    // 1m default
	TimeframeCoarse Timeframe = "coarse" // 5m default, drives trend classification
)

// Tick is one raw candle record from the feed (canonical fine granularity)
type Tick struct {
	Asset     string          `json:"asset"`
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
}

// Candle is one OHLC bar for a timeframe and aligned time bucket.
// Mutable only while Closed is false; closed candles are passed by value
// and never re-opened.
type Candle struct {
	Asset       string          `json:"asset"`
	Timeframe   Timeframe       `json:"timeframe"`
	BucketStart time.Time       `json:"bucket_start"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Closed      bool            `json:"closed"`
}

// Body returns |close - open|.
func (c Candle) Body() decimal.Decimal {
	return c.Close.Sub(c.Open).Abs()
}

// Tail returns the lower wick: min(open, close) - low.
func (c Candle) Tail() decimal.Decimal {
	return decimal.Min(c.Open, c.Close).Sub(c.Low)
}

// Head returns the upper wick: high - max(open, close).
func (c Candle) Head() decimal.Decimal {
	return c.High.Sub(decimal.Max(c.Open, c.Close))
}

// TrendDirection is the market-direction belief from coarse candles
type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendDown TrendDirection = "down"
	TrendNone TrendDirection = "none"
)

// TrendState is the classifier output after each closed coarse candle
type TrendState struct {
	Asset         string          `json:"asset"`
	Direction     TrendDirection  `json:"direction"`
	Streak        int             `json:"streak"`
	LastSwingHigh decimal.Decimal `json:"last_swing_high"`
	LastSwingLow  decimal.Decimal `json:"last_swing_low"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// WickKind classifies a long-wick reversal pattern
type WickKind string

const (
	WickLongTail WickKind = "long_tail" // long lower wick, bullish reversal hint
	WickLongHead WickKind = "long_head" // long upper wick, bearish reversal hint
)

// WickEvent is a detected long-wick pattern on a closed fine candle
type WickEvent struct {
	Asset       string    `json:"asset"`
	Kind        WickKind  `json:"kind"`
	Ratio       float64   `json:"ratio"` // wick length / body length
	BucketStart time.Time `json:"bucket_start"`
}

// SignalDirection is the emitted trade direction
type SignalDirection string

const (
	SignalCall SignalDirection = "call"
	SignalPut  SignalDirection = "put"
)

// SignalBasis records what the signal was derived from
type SignalBasis struct {
	Trend TrendDirection `json:"trend"`
	Wick  WickEvent      `json:"wick"`
}

// TradeSignal is the engine output, immutable once issued
type TradeSignal struct {
	ID        string          `json:"id"`
	Asset     string          `json:"asset"`
	Direction SignalDirection `json:"direction"`
	Price     decimal.Decimal `json:"price"`
	IssuedAt  time.Time       `json:"issued_at"`
	Basis     SignalBasis     `json:"basis"`
}

// SignalResult stores the tracked outcome of a signal after its window elapsed
type SignalResult struct {
	SignalID    string          `json:"signal_id"`
	Asset       string          `json:"asset"`
	Direction   SignalDirection `json:"direction"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	ExitPrice   decimal.Decimal `json:"exit_price"`
	IssuedAt    time.Time       `json:"issued_at"`
	ResolvedAt  time.Time       `json:"resolved_at"`
	Won         bool            `json:"won"`
	PriceChange decimal.Decimal `json:"price_change"`
}

// Stats is per-asset signal performance
type Stats struct {
	Asset         string         `json:"asset"`
	TotalSignals  int            `json:"total_signals"`
	Wins          int            `json:"wins"`
	Losses        int            `json:"losses"`
	WinRate       float64        `json:"win_rate"`
	BestStreak    int            `json:"best_streak"`
	CurrentStreak int            `json:"current_streak"`
	LastUpdated   time.Time      `json:"last_updated"`
	RecentResults []SignalResult `json:"recent_results,omitempty"`
}

// Config is the application configuration
type Config struct {
	Assets   []string       `yaml:"assets"`
	Feed     FeedConfig     `yaml:"feed"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Storage  StorageConfig  `yaml:"storage"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type FeedConfig struct {
	URL            string `yaml:"url"`
	ReconnectDelay int    `yaml:"reconnect_delay"` // seconds, doubles up to 30
	PingInterval   int    `yaml:"ping_interval"`   // seconds
}

type PipelineConfig struct {
	FineDuration           int     `yaml:"fine_duration"`            // seconds
	MidDuration            int     `yaml:"mid_duration"`             // seconds
	CoarseDuration         int     `yaml:"coarse_duration"`          // seconds
	TrendConfirmationCount int     `yaml:"trend_confirmation_count"` // >= 2
	WickRatioThreshold     float64 `yaml:"wick_ratio_threshold"`     // > 0
	MinAbsoluteWick        float64 `yaml:"min_absolute_wick"`        // doji fallback
	CooldownDuration       int     `yaml:"cooldown_duration"`        // seconds
	StaleAfterIntervals    int     `yaml:"stale_after_intervals"`    // multiples of fine_duration
}

func (p PipelineConfig) Fine() time.Duration   { return time.Duration(p.FineDuration) * time.Second }
func (p PipelineConfig) Mid() time.Duration    { return time.Duration(p.MidDuration) * time.Second }
func (p PipelineConfig) Coarse() time.Duration { return time.Duration(p.CoarseDuration) * time.Second }
func (p PipelineConfig) Cooldown() time.Duration {
	return time.Duration(p.CooldownDuration) * time.Second
}

type StorageConfig struct {
	Path               string `yaml:"path"`
	KeepSignalsHours   int    `yaml:"keep_signals_hours"`
	MaxCandlesInMemory int    `yaml:"max_candles_in_memory"`
}

type APIConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	EnableCORS       bool   `yaml:"enable_cors"`
	WebSocketEnabled bool   `yaml:"websocket_enabled"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

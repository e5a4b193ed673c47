package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eo-trader/internal/api"
	"eo-trader/internal/candles"
	"eo-trader/internal/config"
	"eo-trader/internal/engine"
	"eo-trader/internal/feed"
	"eo-trader/internal/storage"
	"eo-trader/internal/tracker"
	"eo-trader/pkg/types"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogging(cfg.Logging)
	log.Info().Int("assets", len(cfg.Assets)).Msg("eo-trader starting")

	store := storage.NewMemoryStorage(cfg.Storage.MaxCandlesInMemory)

	db, err := storage.NewSQLiteDB(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Storage.Path).Msg("failed to open database")
	}
	defer db.Close()

	resultTracker := tracker.NewResultTracker(store, db, cfg.Pipeline.Cooldown())
	manager := engine.NewManager(cfg.Assets, cfg.Pipeline)

	var session *feed.Session
	sink := newSignalSink(store, db, resultTracker, func(s types.TradeSignal) error {
		return session.SendSignal(s)
	})

	session = feed.NewSession(cfg.Feed, cfg.Assets, func(tick types.Tick) {
		store.SetLatestPrice(tick.Asset, tick.Close)

		result, err := manager.OnTick(tick)
		if err != nil {
			logTickError(tick, err)
			return
		}
		sink.consume(result)
	})
	session.Start()

	go runBackgroundTasks(manager, store, db, resultTracker, sink, cfg)

	server := api.NewServer(manager, store, resultTracker, cfg.API)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Msg("system ready")
	<-quit

	log.Info().Msg("shutting down")
	session.Stop()
	if err := server.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("error during shutdown")
	}
}

// signalSink fans a pipeline result out to storage, persistence, the
// outcome tracker and the broker.
type signalSink struct {
	store   *storage.MemoryStorage
	db      *storage.SQLiteDB
	tracker *tracker.ResultTracker
	send    func(types.TradeSignal) error
}

func newSignalSink(store *storage.MemoryStorage, db *storage.SQLiteDB, t *tracker.ResultTracker, send func(types.TradeSignal) error) *signalSink {
	return &signalSink{store: store, db: db, tracker: t, send: send}
}

func (s *signalSink) consume(result engine.Result) {
	for _, candle := range result.Closed {
		s.store.AddCandle(candle)
		if candle.Timeframe == types.TimeframeCoarse {
			if err := s.db.SaveCandle(candle); err != nil {
				log.Error().Err(err).Str("asset", candle.Asset).Msg("failed to persist candle")
			}
		}
	}

	if result.Trend != nil {
		s.store.SetTrend(*result.Trend)
		log.Debug().
			Str("asset", result.Trend.Asset).
			Str("direction", string(result.Trend.Direction)).
			Int("streak", result.Trend.Streak).
			Msg("trend updated")
	}

	for _, sig := range result.Signals {
		s.store.StoreSignal(sig)
		if err := s.db.SaveSignal(sig); err != nil {
			log.Error().Err(err).Str("signal", sig.ID).Msg("failed to persist signal")
		}
		if err := s.send(sig); err != nil {
			log.Error().Err(err).Str("signal", sig.ID).Msg("failed to send trade")
		}
		s.tracker.Track(sig)

		log.Info().
			Str("asset", sig.Asset).
			Str("direction", string(sig.Direction)).
			Str("price", sig.Price.String()).
			Str("trend", string(sig.Basis.Trend)).
			Str("wick", string(sig.Basis.Wick.Kind)).
			Msg("trade signal issued")
	}
}

// logTickError keeps per-tick errors local: they are reported and the
// pipeline keeps running.
func logTickError(tick types.Tick, err error) {
	// Late ticks are routine under reconnects; only malformed data is
	// worth a warning.
	if errors.Is(err, candles.ErrLateTick) {
		log.Debug().Err(err).Str("asset", tick.Asset).Time("ts", tick.Timestamp).Msg("late tick dropped")
		return
	}
	log.Warn().Err(err).Str("asset", tick.Asset).Time("ts", tick.Timestamp).Msg("tick rejected")
}

// runBackgroundTasks starts the periodic maintenance loops.
func runBackgroundTasks(
	manager *engine.Manager,
	store *storage.MemoryStorage,
	db *storage.SQLiteDB,
	resultTracker *tracker.ResultTracker,
	sink *signalSink,
	cfg types.Config,
) {
	// Seal candles whose close boundary elapsed without a follow-up tick.
	go func() {
		ticker := time.NewTicker(cfg.Pipeline.Fine())
		defer ticker.Stop()

		for range ticker.C {
			for _, result := range manager.FlushElapsed(time.Now()) {
				sink.consume(result)
			}
		}
	}()

	// Stale-feed watchdog. Trend state is kept across short gaps; only
	// a warning is surfaced.
	go func() {
		staleAfter := time.Duration(cfg.Pipeline.StaleAfterIntervals) * cfg.Pipeline.Fine()
		ticker := time.NewTicker(staleAfter)
		defer ticker.Stop()

		for range ticker.C {
			for _, asset := range manager.StaleAssets(time.Now()) {
				log.Warn().Str("asset", asset).Dur("stale_after", staleAfter).Msg("feed is stale")
			}
		}
	}()

	// Stats refresh every minute.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			resultTracker.RecalculateAll(manager.Assets())
		}
	}()

	// Retention cleanup every hour.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			store.Cleanup(cfg.Storage.KeepSignalsHours)
			if err := db.Cleanup(cfg.Storage.KeepSignalsHours); err != nil {
				log.Error().Err(err).Msg("database cleanup failed")
			}
		}
	}()
}

func setupLogging(cfg types.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

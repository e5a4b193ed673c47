package api

import (
	"strconv"
	"time"

	"eo-trader/internal/engine"
	"eo-trader/internal/storage"
	"eo-trader/internal/tracker"
	"eo-trader/pkg/types"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog/log"
)

// Handler handles HTTP requests
type Handler struct {
	manager *engine.Manager
	storage *storage.MemoryStorage
	tracker *tracker.ResultTracker
}

// NewHandler creates a new API handler
func NewHandler(manager *engine.Manager, store *storage.MemoryStorage, tracker *tracker.ResultTracker) *Handler {
	return &Handler{
		manager: manager,
		storage: store,
		tracker: tracker,
	}
}

// Health handles GET /api/health
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"assets": len(h.manager.Assets()),
		"time":   time.Now(),
	})
}

// GetAssets handles GET /api/assets
func (h *Handler) GetAssets(c *fiber.Ctx) error {
	now := time.Now()
	assets := h.manager.Assets()

	out := make([]fiber.Map, 0, len(assets))
	for _, asset := range assets {
		pipeline, _ := h.manager.Pipeline(asset)
		out = append(out, fiber.Map{
			"asset": asset,
			"state": string(pipeline.DecisionState(now)),
			"stale": pipeline.Stale(now),
			"price": h.storage.GetLatestPrice(asset),
		})
	}
	return c.JSON(out)
}

// GetTrend handles GET /api/trend/:asset
func (h *Handler) GetTrend(c *fiber.Ctx) error {
	asset := c.Params("asset")

	pipeline, ok := h.manager.Pipeline(asset)
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "unknown asset", "asset": asset})
	}

	return c.JSON(fiber.Map{
		"trend": pipeline.TrendState(),
		"state": string(pipeline.DecisionState(time.Now())),
	})
}

// GetCandles handles GET /api/candles/:asset/:timeframe
func (h *Handler) GetCandles(c *fiber.Ctx) error {
	asset := c.Params("asset")
	tf := types.Timeframe(c.Params("timeframe"))

	switch tf {
	case types.TimeframeFine, types.TimeframeMid, types.TimeframeCoarse:
	default:
		return c.Status(400).JSON(fiber.Map{"error": "invalid timeframe", "timeframe": string(tf)})
	}

	limit, err := strconv.Atoi(c.Query("limit", "100"))
	if err != nil || limit < 1 || limit > 1000 {
		limit = 100
	}

	return c.JSON(h.storage.GetCandles(asset, tf, limit))
}

// GetSignals handles GET /api/signals/:asset
func (h *Handler) GetSignals(c *fiber.Ctx) error {
	return c.JSON(h.storage.GetSignals(c.Params("asset")))
}

// GetResults handles GET /api/results/:asset
func (h *Handler) GetResults(c *fiber.Ctx) error {
	return c.JSON(h.storage.GetResults(c.Params("asset")))
}

// GetStats handles GET /api/stats/:asset
func (h *Handler) GetStats(c *fiber.Ctx) error {
	return c.JSON(h.storage.GetStats(c.Params("asset")))
}

// GetAllStats handles GET /api/stats
func (h *Handler) GetAllStats(c *fiber.Ctx) error {
	return c.JSON(h.storage.GetAllStats())
}

// pendingSignals returns the signals past the cursor and the new cursor.
// Retention cleanup shrinks the stored list between polls, so the cursor
// is clamped before slicing.
func pendingSignals(signals []types.TradeSignal, sent int) ([]types.TradeSignal, int) {
	if sent > len(signals) {
		sent = len(signals)
	}
	return signals[sent:], len(signals)
}

// WebSocketHandler streams trend state and newly issued signals for one
// asset.
func (h *Handler) WebSocketHandler(c *websocket.Conn) {
	asset := c.Params("asset")

	pipeline, ok := h.manager.Pipeline(asset)
	if !ok {
		c.WriteJSON(fiber.Map{"error": "unknown asset", "asset": asset})
		c.Close()
		return
	}

	log.Info().Str("asset", asset).Msg("websocket connected")
	defer func() {
		c.Close()
		log.Info().Str("asset", asset).Msg("websocket disconnected")
	}()

	sent := len(h.storage.GetSignals(asset))

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		pending, next := pendingSignals(h.storage.GetSignals(asset), sent)
		for _, signal := range pending {
			if err := c.WriteJSON(fiber.Map{"type": "signal", "signal": signal}); err != nil {
				return
			}
		}
		sent = next

		update := fiber.Map{
			"type":  "trend",
			"trend": pipeline.TrendState(),
			"state": string(pipeline.DecisionState(time.Now())),
		}
		if err := c.WriteJSON(update); err != nil {
			return
		}
	}
}

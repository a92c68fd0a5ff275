// Package marketdata streams mark prices into the portfolio. It connects to
// a JSON tick feed over WebSocket, batches ticks per flush interval, and
// applies them with Portfolio.UpdatePositionPrices — a best-effort mark
// refresh, never a transactional operation.
package marketdata

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"trading-core/internal/portfolio"
)

// Tick is one mark-price update from the feed.
type Tick struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	TS     int64   `json:"ts"` // unix millis
}

// IngestConfig holds the feed connection settings.
type IngestConfig struct {
	URL            string
	FlushInterval  time.Duration // batch window for portfolio mark updates
	ReconnectDelay time.Duration
}

// Ingest connects to the feed and marks the portfolio.
type Ingest struct {
	cfg IngestConfig
	log *slog.Logger

	// Optional hooks for metrics.
	OnReconnect func()
	OnFlush     func(n int)
}

// New creates an Ingest for the given feed URL.
func New(cfg IngestConfig, log *slog.Logger) *Ingest {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Ingest{cfg: cfg, log: log}
}

// Run streams ticks into the portfolio until ctx is cancelled, reconnecting
// with a fixed delay on feed errors.
func (ing *Ingest) Run(ctx context.Context, pf *portfolio.Portfolio) {
	for {
		if err := ing.stream(ctx, pf); err != nil {
			ing.log.Warn("mark feed disconnected", "url", ing.cfg.URL, "error", err)
		}
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(ing.cfg.ReconnectDelay):
		}
	}
}

func (ing *Ingest) stream(ctx context.Context, pf *portfolio.Portfolio) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	ing.log.Info("mark feed connected", "url", ing.cfg.URL)

	tickCh := make(chan Tick, 1000)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			var t Tick
			if err := json.Unmarshal(msg, &t); err != nil || t.Symbol == "" {
				continue // malformed tick, skip
			}
			select {
			case tickCh <- t:
			default:
				// Batch map below dedupes per symbol anyway; dropping under
				// backpressure only loses an intermediate mark.
			}
		}
	}()

	pending := make(map[string]float64)
	flush := time.NewTicker(ing.cfg.FlushInterval)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case err := <-readErr:
			return err
		case t := <-tickCh:
			pending[t.Symbol] = t.Price
		case <-flush.C:
			if len(pending) == 0 {
				continue
			}
			pf.UpdatePositionPrices(pending)
			if ing.OnFlush != nil {
				ing.OnFlush(len(pending))
			}
			pending = make(map[string]float64)
		}
	}
}

// Package execution orchestrates the order lifecycle: domain construction,
// structural validation, pre-trade risk, persistence, venue submission, fill
// application, and event dispatch.
//
// The Coordinator is the serialization point for the non-thread-safe domain
// entities. It holds a per-order-id lock across every load-mutate-persist
// sequence, so concurrent fills (or a fill racing a cancel) on one order are
// applied strictly one at a time.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"trading-core/internal/domain"
	"trading-core/internal/logger"
	"trading-core/internal/metrics"
	"trading-core/internal/portfolio"
)

// CreateOrderRequest carries the caller's order parameters. Required fields
// depend on Type: Price for limit and iceberg, StopPrice for stop-loss,
// VisibleQty for iceberg.
type CreateOrderRequest struct {
	Symbol        string             `json:"symbol"`
	Side          domain.Side        `json:"side"`
	Type          domain.OrderType   `json:"type"`
	Qty           float64            `json:"qty"`
	Price         float64            `json:"price,omitempty"`
	StopPrice     float64            `json:"stop_price,omitempty"`
	VisibleQty    float64            `json:"visible_qty,omitempty"`
	TIF           domain.TimeInForce `json:"tif,omitempty"`
	ClientOrderID string             `json:"client_order_id,omitempty"`
}

// CoordinatorConfig holds optional coordinator collaborators and defaults.
type CoordinatorConfig struct {
	DefaultTIF domain.TimeInForce
	Validators []Validator
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Coordinator wires the domain entities to their injected collaborators.
type Coordinator struct {
	repo       OrderRepository
	venue      VenueClient
	sink       EventSink
	pf         *portfolio.Portfolio
	validators []Validator
	met        *metrics.Metrics
	log        *slog.Logger
	locks      *keyedMutex
	defaultTIF domain.TimeInForce
}

// NewCoordinator creates a coordinator over the given collaborators.
func NewCoordinator(repo OrderRepository, venue VenueClient, sink EventSink, pf *portfolio.Portfolio, cfg CoordinatorConfig) *Coordinator {
	lg := cfg.Logger
	if lg == nil {
		lg = slog.Default()
	}
	tif := cfg.DefaultTIF
	if tif == "" {
		tif = domain.GTC
	}
	return &Coordinator{
		repo:       repo,
		venue:      venue,
		sink:       sink,
		pf:         pf,
		validators: cfg.Validators,
		met:        cfg.Metrics,
		log:        lg,
		locks:      newKeyedMutex(),
		defaultTIF: tif,
	}
}

func (c *Coordinator) buildOrder(req CreateOrderRequest) (*domain.Order, error) {
	tif := req.TIF
	if tif == "" {
		tif = c.defaultTIF
	}
	switch req.Type {
	case domain.Limit:
		return domain.NewLimitOrder(req.Symbol, req.Side, req.Qty, req.Price, tif, req.ClientOrderID)
	case domain.Market:
		return domain.NewMarketOrder(req.Symbol, req.Side, req.Qty, tif, req.ClientOrderID)
	case domain.StopLoss:
		return domain.NewStopLossOrder(req.Symbol, req.Side, req.Qty, req.StopPrice, tif, req.ClientOrderID)
	case domain.Iceberg:
		return domain.NewIcebergOrder(req.Symbol, req.Side, req.Qty, req.Price, req.VisibleQty, tif, req.ClientOrderID)
	default:
		return nil, domain.Errf(domain.KindInvalidArgument, "unknown order type %q", req.Type)
	}
}

// CreateOrder runs the creation pipeline: construct, validate, risk-check,
// persist, submit to the venue, dispatch events. A venue rejection leaves
// the persisted order CANCELLED before the VenueRejected error is surfaced,
// so no order is left ahead of its acknowledged state. All other failures
// are surfaced verbatim. A repeated ClientOrderID returns the order it
// already created.
func (c *Coordinator) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	if req.ClientOrderID != "" {
		existing, err := c.repo.FindByClientOrderID(ctx, req.ClientOrderID)
		switch {
		case err == nil && existing != nil:
			c.log.Info("order create replay", "client_order_id", req.ClientOrderID, "order_id", existing.ID)
			return existing, nil
		case err != nil && domain.KindOf(err) != domain.KindNotFound:
			// A store outage is not "not found"; creating a second order
			// under the same client id here would break idempotency.
			return nil, err
		}
	}

	o, err := c.buildOrder(req)
	if err != nil {
		c.countRejected(domain.KindOf(err))
		return nil, err
	}
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(o.ID, o.CreatedAt))

	for _, v := range c.validators {
		if err := v.ValidateOrder(o); err != nil {
			c.countRejected(domain.KindOf(err))
			return nil, err
		}
	}

	// Pre-trade risk. Market orders have no fixed notional; the evaluator
	// checks apply to priced types only.
	if notional, nerr := o.NotionalValue(); nerr == nil {
		if err := c.pf.CanAdmit(notional); err != nil {
			_ = o.Reject(err.Error())
			o.TakeEvents() // failed operation emits nothing
			c.countRejected(domain.KindOf(err))
			c.log.Warn("order rejected by risk check",
				append(logger.OrderAttrs(ctx, o.ID, o.Symbol), "error", err)...)
			return nil, err
		}
	}

	if err := o.Activate(); err != nil {
		return nil, err
	}
	if err := c.repo.Save(ctx, o); err != nil {
		return nil, err
	}

	ack, verr := c.submitTimed(ctx, o)
	if verr != nil || ack.Status == VenueRejected {
		// Roll the order back to a state consistent with the venue before
		// surfacing the failure.
		_ = o.Cancel()
		if uerr := c.repo.Update(ctx, o); uerr != nil {
			c.log.Error("failed to persist venue rollback",
				"order_id", o.ID, "error", uerr)
		}
		o.TakeEvents()
		msg := ack.Message
		if verr != nil {
			msg = verr.Error()
		}
		c.countRejected(domain.KindVenueRejected)
		c.log.Error("venue rejected order",
			append(logger.OrderAttrs(ctx, o.ID, o.Symbol), "reason", msg)...)
		return nil, domain.Errf(domain.KindVenueRejected, "venue rejected order %s: %s", o.ID, msg)
	}

	c.dispatch(ctx, o)
	if c.met != nil {
		c.met.OrdersCreated.WithLabelValues(string(o.Type)).Inc()
	}
	c.log.Info("order created",
		append(logger.OrderAttrs(ctx, o.ID, o.Symbol),
			"side", o.Side, "type", o.Type, "qty", float64(o.Qty))...)
	return o, nil
}

// HandleFill applies an asynchronous fill notification from the venue: load
// the order, apply the fill, reflect the exposure change in the portfolio,
// run the advisory post-trade check, persist, dispatch.
func (c *Coordinator) HandleFill(ctx context.Context, orderID string, qty, price float64) (*domain.Order, error) {
	unlock := c.locks.Lock(orderID)
	defer unlock()

	o, err := c.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := o.Fill(qty, price); err != nil {
		return nil, err
	}

	c.applyFillToPortfolio(o, qty, price)

	// Post-trade check is advisory: it never reverses an executed fill.
	if c.pf.DailyLossBreached() {
		if c.met != nil {
			c.met.RiskBreaches.WithLabelValues("daily_loss").Inc()
		}
		c.log.Warn("daily loss limit breached", "account", c.pf.AccountID())
	}

	if err := c.repo.Update(ctx, o); err != nil {
		return nil, err
	}
	c.dispatch(ctx, o)
	if c.met != nil {
		c.met.FillsApplied.Inc()
	}
	c.log.Info("fill applied", "order_id", o.ID, "symbol", o.Symbol,
		"qty", qty, "price", price, "status", o.Status,
		"avg_fill_price", o.AvgFillPrice)
	return o, nil
}

// applyFillToPortfolio opens, extends, or reduces the position behind an
// executed fill. Errors here are logged, not surfaced: the fill already
// happened at the venue and must stand on the order.
func (c *Coordinator) applyFillToPortfolio(o *domain.Order, qty, price float64) {
	exposure := portfolio.Long
	if o.Side == domain.Sell {
		exposure = portfolio.Short
	}

	id, ok := c.pf.OpenPositionID(o.Symbol)
	if !ok {
		pos, err := portfolio.NewPosition(o.Symbol, exposure, qty, price)
		if err == nil {
			err = c.pf.AddPosition(pos)
		}
		if err != nil {
			c.log.Error("fill exposure not admitted", "order_id", o.ID,
				"symbol", o.Symbol, "error", err)
		}
		return
	}

	pos, err := c.pf.Position(id)
	if err != nil {
		c.log.Error("open position vanished", "position_id", id, "error", err)
		return
	}
	if pos.Side == exposure {
		err = c.pf.IncreasePosition(id, qty, price)
	} else {
		var closed bool
		_, closed, err = c.pf.ReducePosition(id, qty, price)
		if err == nil && closed {
			// Settlement value moves back into cash on removal.
			_, err = c.pf.RemovePosition(id)
		}
	}
	if err != nil {
		c.log.Error("fill not applied to portfolio", "order_id", o.ID,
			"symbol", o.Symbol, "position_id", id, "error", err)
	}
}

// CancelOrder cancels an active order at the venue and locally. The venue is
// asked first; its refusal surfaces as VenueRejected with no local mutation.
func (c *Coordinator) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	unlock := c.locks.Lock(orderID)
	defer unlock()

	o, err := c.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsActive() {
		return nil, domain.Errf(domain.KindNotCancellable, "order %s is %s, not cancellable", o.ID, o.Status)
	}

	ack, verr := c.venue.CancelOrder(ctx, orderID)
	if verr != nil || ack.Status == VenueRejected {
		msg := ack.Message
		if verr != nil {
			msg = verr.Error()
		}
		return nil, domain.Errf(domain.KindVenueRejected, "venue refused cancel of %s: %s", orderID, msg)
	}

	if err := o.Cancel(); err != nil {
		return nil, err
	}
	if err := c.repo.Update(ctx, o); err != nil {
		return nil, err
	}
	c.dispatch(ctx, o)
	if c.met != nil {
		c.met.OrdersCancelled.Inc()
	}
	c.log.Info("order cancelled", "order_id", o.ID, "symbol", o.Symbol)
	return o, nil
}

// ModifyOrderPrice changes the price of an active order.
func (c *Coordinator) ModifyOrderPrice(ctx context.Context, orderID string, newPrice float64) (*domain.Order, error) {
	return c.modify(ctx, orderID, func(o *domain.Order) error {
		return o.ModifyPrice(newPrice)
	})
}

// ModifyOrderQuantity changes the requested quantity of an active order.
func (c *Coordinator) ModifyOrderQuantity(ctx context.Context, orderID string, newQty float64) (*domain.Order, error) {
	return c.modify(ctx, orderID, func(o *domain.Order) error {
		return o.ModifyQuantity(newQty)
	})
}

func (c *Coordinator) modify(ctx context.Context, orderID string, mutate func(*domain.Order) error) (*domain.Order, error) {
	unlock := c.locks.Lock(orderID)
	defer unlock()

	o, err := c.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := mutate(o); err != nil {
		return nil, err
	}
	if err := c.repo.Update(ctx, o); err != nil {
		return nil, err
	}
	c.dispatch(ctx, o)
	return o, nil
}

// ExpireStale expires every active good-till-date order whose expiry has
// passed. Returns the expired orders.
func (c *Coordinator) ExpireStale(ctx context.Context) ([]*domain.Order, error) {
	active, err := c.repo.FindActiveOrders(ctx)
	if err != nil {
		return nil, err
	}
	var expired []*domain.Order
	for _, o := range active {
		if o.ExpiresAt == nil || o.ExpiresAt.After(nowUTC()) {
			continue
		}
		unlock := c.locks.Lock(o.ID)
		cur, err := c.repo.FindByID(ctx, o.ID)
		if err == nil && cur.IsActive() {
			if err := cur.Expire(); err == nil {
				if uerr := c.repo.Update(ctx, cur); uerr == nil {
					c.dispatch(ctx, cur)
					expired = append(expired, cur)
				}
			}
		}
		unlock()
	}
	return expired, nil
}

// BulkResult aggregates per-item outcomes of a bulk operation.
type BulkResult struct {
	Orders []*domain.Order `json:"orders"`
	Errors []string        `json:"errors,omitempty"`
}

// CreateBulkOrders applies CreateOrder to each request independently. One
// item's failure never aborts the others; failures are collected into the
// result. If every item fails, the call itself fails with a summary error.
func (c *Coordinator) CreateBulkOrders(ctx context.Context, reqs []CreateOrderRequest) (BulkResult, error) {
	var res BulkResult
	for i, req := range reqs {
		o, err := c.CreateOrder(ctx, req)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("order %d (%s): %v", i, req.Symbol, err))
			continue
		}
		res.Orders = append(res.Orders, o)
	}
	if len(reqs) > 0 && len(res.Orders) == 0 {
		return res, domain.Errf(domain.KindInvalidArgument,
			"all %d orders failed: %s", len(reqs), strings.Join(res.Errors, "; "))
	}
	return res, nil
}

// CancelAllOrders cancels every active order independently, collecting
// per-item failures. If every cancel fails, the call fails with a summary
// error.
func (c *Coordinator) CancelAllOrders(ctx context.Context) (BulkResult, error) {
	active, err := c.repo.FindActiveOrders(ctx)
	if err != nil {
		return BulkResult{}, err
	}
	var res BulkResult
	for _, o := range active {
		cancelled, cerr := c.CancelOrder(ctx, o.ID)
		if cerr != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("order %s: %v", o.ID, cerr))
			continue
		}
		res.Orders = append(res.Orders, cancelled)
	}
	if len(active) > 0 && len(res.Orders) == 0 {
		return res, domain.Errf(domain.KindNotCancellable,
			"all %d cancels failed: %s", len(active), strings.Join(res.Errors, "; "))
	}
	return res, nil
}

// ConsumeFills drains a paper venue fill channel into HandleFill. Blocks
// until ctx is cancelled or the channel is closed.
func (c *Coordinator) ConsumeFills(ctx context.Context, fills <-chan PaperFill) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-fills:
			if !ok {
				return
			}
			if _, err := c.HandleFill(ctx, f.OrderID, f.Qty, f.FillPrice); err != nil {
				c.log.Warn("fill rejected", "order_id", f.OrderID, "error", err)
			}
		}
	}
}

func (c *Coordinator) submitTimed(ctx context.Context, o *domain.Order) (VenueAck, error) {
	if c.met == nil {
		return c.venue.SubmitOrder(ctx, o)
	}
	timer := c.met.VenueSubmitDur
	start := nowUTC()
	ack, err := c.venue.SubmitOrder(ctx, o)
	timer.Observe(nowUTC().Sub(start).Seconds())
	return ack, err
}

// dispatch drains the order's accumulated events and publishes them in the
// order they were raised. Publish failures are logged; the completed domain
// operation is not rolled back for a sink outage.
func (c *Coordinator) dispatch(ctx context.Context, o *domain.Order) {
	events := o.TakeEvents()
	if len(events) == 0 {
		return
	}
	if err := c.sink.Publish(ctx, events); err != nil {
		c.log.Warn("event publish failed", "order_id", o.ID,
			"events", len(events), "error", err)
		return
	}
	if c.met != nil {
		c.met.EventsPublished.Add(float64(len(events)))
	}
}

func (c *Coordinator) countRejected(kind domain.ErrorKind) {
	if c.met != nil {
		c.met.OrdersRejected.WithLabelValues(string(kind)).Inc()
	}
}

func nowUTC() time.Time { return time.Now().UTC() }

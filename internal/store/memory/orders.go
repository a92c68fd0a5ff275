// Package memory holds an in-memory order repository for tests and
// embedded, non-durable deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"trading-core/internal/domain"
)

// OrderRepo keeps orders in a mutex-guarded map. Orders are stored by
// value-copy so callers never share entity instances with the repository.
type OrderRepo struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	byClient map[string]string
}

// NewOrderRepo creates an empty in-memory repository.
func NewOrderRepo() *OrderRepo {
	return &OrderRepo{
		orders:   make(map[string]domain.Order),
		byClient: make(map[string]string),
	}
}

// Save inserts a new order.
func (r *OrderRepo) Save(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[o.ID]; exists {
		return domain.Errf(domain.KindPersistenceFailure, "order %s already saved", o.ID)
	}
	r.orders[o.ID] = *o.Clone()
	if o.ClientOrderID != "" {
		r.byClient[o.ClientOrderID] = o.ID
	}
	return nil
}

// Update replaces a stored order.
func (r *OrderRepo) Update(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[o.ID]; !exists {
		return domain.Errf(domain.KindNotFound, "order %s not found", o.ID)
	}
	r.orders[o.ID] = *o.Clone()
	return nil
}

// Delete removes an order.
func (r *OrderRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, exists := r.orders[id]
	if !exists {
		return domain.Errf(domain.KindNotFound, "order %s not found", id)
	}
	delete(r.orders, id)
	if o.ClientOrderID != "" {
		delete(r.byClient, o.ClientOrderID)
	}
	return nil
}

// FindByID loads one order.
func (r *OrderRepo) FindByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.Errf(domain.KindNotFound, "order %s not found", id)
	}
	cp := o
	return &cp, nil
}

// FindByClientOrderID loads the order saved under an idempotency token.
func (r *OrderRepo) FindByClientOrderID(_ context.Context, clientOrderID string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byClient[clientOrderID]
	if !ok {
		return nil, domain.Errf(domain.KindNotFound, "client order id %s not found", clientOrderID)
	}
	cp := r.orders[id]
	return &cp, nil
}

// FindActiveOrders returns orders still eligible for fills, oldest first.
func (r *OrderRepo) FindActiveOrders(_ context.Context) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.Order
	for _, o := range r.orders {
		if o.Status == domain.StatusNew || o.Status == domain.StatusPartiallyFilled {
			cp := o
			result = append(result, &cp)
		}
	}
	sortByCreation(result)
	return result, nil
}

// FindBySymbol returns every order on a symbol, oldest first.
func (r *OrderRepo) FindBySymbol(_ context.Context, symbol string) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.Order
	for _, o := range r.orders {
		if o.Symbol == symbol {
			cp := o
			result = append(result, &cp)
		}
	}
	sortByCreation(result)
	return result, nil
}

func sortByCreation(orders []*domain.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}

package service

import (
	"context"
	"log/slog"
	"slices"

	apperrors "github.com/utafrali/CitizenPortal/pkg/errors"
	"github.com/utafrali/CitizenPortal/pkg/logger"
	"github.com/utafrali/CitizenPortal/pkg/pagination"
	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
)

// OrderLister reads the current citizen's orders.
type OrderLister interface {
	GetMyOrders(ctx context.Context) ([]domain.Order, error)
}

// OrderView is the read-only lifecycle projection over backend orders.
type OrderView struct {
	lister OrderLister
	logger *slog.Logger
}

// NewOrderView creates an order view.
func NewOrderView(lister OrderLister, logger *slog.Logger) *OrderView {
	return &OrderView{lister: lister, logger: logger}
}

// List fetches all orders, counts them, then applies the filter and cuts out
// the requested page. rawFilter is "", "all" or an order status in any case.
// The summary always covers the full set.
func (v *OrderView) List(ctx context.Context, rawFilter string, page pagination.Params) (*domain.OrderListing, error) {
	filter, ok := domain.ParseOrderFilter(rawFilter)
	if !ok {
		return nil, apperrors.InvalidInput("unknown order status filter: " + rawFilter)
	}

	orders, err := v.lister.GetMyOrders(ctx)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(orders, func(a, b domain.Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	filtered := make([]domain.Order, 0, len(orders))
	unknown := 0
	for _, o := range orders {
		if !o.Status.Known() {
			unknown++
		}
		if filter.Matches(o) {
			filtered = append(filtered, o)
		}
	}

	visible, meta := pagination.Slice(filtered, page)

	name := "all"
	if !filter.All() {
		name = string(filter.Status)
	}

	logger.WithContext(ctx, v.logger).DebugContext(ctx, "orders listed",
		slog.String("filter", name),
		slog.Int("total", len(orders)),
		slog.Int("matched", len(filtered)),
		slog.Int("unknown_status", unknown),
	)

	return &domain.OrderListing{
		Filter:  name,
		Orders:  visible,
		Summary: domain.Summarize(orders),
		Page:    meta,
	}, nil
}

// Owns reports whether orderID is among the caller's orders. Orders that
// belong to someone else are indistinguishable from missing ones.
func (v *OrderView) Owns(ctx context.Context, orderID string) error {
	orders, err := v.lister.GetMyOrders(ctx)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if o.ID == orderID {
			return nil
		}
	}

	logger.WithContext(ctx, v.logger).WarnContext(ctx, "order not owned by caller",
		slog.String("order_id", orderID),
	)
	return apperrors.NotFound("order", orderID)
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/ecomify/internal/domain/cart"
	"github.com/xenking/ecomify/internal/domain/discount"
	"github.com/xenking/ecomify/internal/domain/order"
)

type orderItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity"`
}

// placeOrderRequest either lists the items or, with from_cart, checks out the
// caller's cart including its applied discounts.
type placeOrderRequest struct {
	Items        []orderItemRequest `json:"items" validate:"dive"`
	DiscountKind string             `json:"discount_kind" validate:"omitempty,oneof=fixed percentage coupon"`
	DiscountIDs  []string           `json:"discount_ids" validate:"dive,required"`
	FromCart     bool               `json:"from_cart"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	customer := caller(r).ID

	preq := order.PlaceOrderRequest{CustomerID: customer, DiscountIDs: req.DiscountIDs}
	if req.DiscountKind != "" {
		kind, err := discount.ParseKind(req.DiscountKind)
		if err != nil {
			writeError(w, r, err)
			return
		}
		preq.DiscountKind = kind
	}
	for _, it := range req.Items {
		preq.Items = append(preq.Items, order.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	if req.FromCart {
		c, err := h.carts.Get(ctx, customer)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if c.Len() == 0 {
			writeError(w, r, cart.ErrEmpty)
			return
		}
		preq.Items = preq.Items[:0]
		for _, it := range c.Items() {
			preq.Items = append(preq.Items, order.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity})
		}
		if len(preq.DiscountIDs) == 0 && len(c.DiscountIDs) > 0 {
			preq.DiscountKind = c.DiscountKind
			preq.DiscountIDs = c.DiscountIDs
		}
	}

	res, err := h.orders.PlaceOrder(ctx, preq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.FromCart {
		// The order is committed at this point; a failed clear leaves a stale cart.
		if err := h.carts.Clear(ctx, customer); err != nil {
			zctx.From(ctx).Warn("Clear cart after checkout failed",
				zap.String("order_id", res.Order.ID),
				zap.Error(err),
			)
		}
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { h.encodeOrder(e, res.Order, res.Products) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !owns(caller(r), o.CustomerID) {
		writeError(w, r, order.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrder(e, o, nil) })
}

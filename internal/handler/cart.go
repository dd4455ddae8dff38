package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/ecomify/internal/domain/cart"
	"github.com/xenking/ecomify/internal/domain/discount"
)

type addCartItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type applyCartDiscountsRequest struct {
	Kind        string   `json:"kind" validate:"required,oneof=fixed percentage coupon"`
	DiscountIDs []string `json:"discount_ids" validate:"required,min=1,dive,required"`
}

func writeCart(w http.ResponseWriter, c *cart.Cart) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), caller(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, c)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), caller(r).ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.carts.AddItem(r.Context(), caller(r).ID, req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, c)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveItem(r.Context(), caller(r).ID, chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, c)
}

func (h *Handler) applyCartDiscounts(w http.ResponseWriter, r *http.Request) {
	var req applyCartDiscountsRequest
	if !decode(w, r, &req) {
		return
	}
	kind, err := discount.ParseKind(req.Kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.carts.ApplyDiscounts(r.Context(), caller(r).ID, kind, req.DiscountIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, c)
}

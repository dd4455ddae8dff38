package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/ecomify/internal/domain/discount"
)

// Percentages cross the API in percent, (0, 100].
type createDiscountRequest struct {
	Code           string              `json:"code" validate:"max=64"`
	Kind           string              `json:"kind" validate:"required,oneof=fixed percentage coupon"`
	FixedAmount    decimal.NullDecimal `json:"fixed_amount"`
	Percentage     decimal.NullDecimal `json:"percentage"`
	MaxUses        int                 `json:"max_uses"`
	MinOrderAmount decimal.Decimal     `json:"min_order_amount"`
	MaxUsesPerUser int                 `json:"max_uses_per_user"`
	ValidFrom      time.Time           `json:"valid_from" validate:"required"`
	ValidTo        time.Time           `json:"valid_to" validate:"required"`
	AutoApply      bool                `json:"auto_apply"`
}

type applyDiscountRequest struct {
	Kind        string              `json:"kind" validate:"required,oneof=fixed percentage coupon"`
	Amount      decimal.Decimal     `json:"amount"`
	DiscountID  string              `json:"discount_id"`
	CouponCode  string              `json:"coupon_code"`
	Percentage  decimal.NullDecimal `json:"percentage"`
	FixedAmount decimal.NullDecimal `json:"fixed_amount"`
}

type stackDiscountsRequest struct {
	Kind        string          `json:"kind" validate:"required,oneof=fixed percentage coupon"`
	Amount      decimal.Decimal `json:"amount"`
	DiscountIDs []string        `json:"discount_ids" validate:"required,min=1,dive,required"`
}

func writeDiscount(w http.ResponseWriter, status int, d *discount.Discount) {
	writeJSON(w, status, func(e *jx.Encoder) { encodeDiscount(e, d) })
}

func (h *Handler) createDiscount(w http.ResponseWriter, r *http.Request) {
	var req createDiscountRequest
	if !decode(w, r, &req) {
		return
	}
	kind, err := discount.ParseKind(req.Kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pct := req.Percentage
	if pct.Valid {
		pct.Decimal = discount.PercentToFraction(pct.Decimal)
	}
	d, err := h.discounts.Create(r.Context(), discount.Params{
		Code:           req.Code,
		Kind:           kind,
		FixedAmount:    req.FixedAmount,
		Percentage:     pct,
		MaxUses:        req.MaxUses,
		MinOrderAmount: req.MinOrderAmount,
		MaxUsesPerUser: req.MaxUsesPerUser,
		ValidFrom:      req.ValidFrom,
		ValidTo:        req.ValidTo,
		AutoApply:      req.AutoApply,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeDiscount(w, http.StatusCreated, d)
}

func (h *Handler) getDiscount(w http.ResponseWriter, r *http.Request) {
	d, err := h.discounts.Get(r.Context(), chi.URLParam(r, "discountID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeDiscount(w, http.StatusOK, d)
}

func (h *Handler) deactivateDiscount(w http.ResponseWriter, r *http.Request) {
	d, err := h.discounts.Deactivate(r.Context(), chi.URLParam(r, "discountID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeDiscount(w, http.StatusOK, d)
}

// applyDiscount prices a single discount against an amount without
// redeeming it.
func (h *Handler) applyDiscount(w http.ResponseWriter, r *http.Request) {
	var req applyDiscountRequest
	if !decode(w, r, &req) {
		return
	}
	kind, err := discount.ParseKind(req.Kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	k := caller(r)
	value, err := h.discounts.Apply(r.Context(), req.Amount, discount.ApplyRequest{
		Kind:        kind,
		DiscountID:  req.DiscountID,
		CouponCode:  req.CouponCode,
		Percentage:  req.Percentage,
		FixedAmount: req.FixedAmount,
		CustomerID:  k.ID,
		IsAdmin:     k.IsAdmin(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			str(e, "kind", kind.String())
			dec(e, "amount", req.Amount)
			dec(e, "discount", value)
			dec(e, "total", decimal.Max(decimal.Zero, req.Amount.Sub(value)))
		})
	})
}

// stackDiscounts previews the combined value of ids, in order.
func (h *Handler) stackDiscounts(w http.ResponseWriter, r *http.Request) {
	var req stackDiscountsRequest
	if !decode(w, r, &req) {
		return
	}
	kind, err := discount.ParseKind(req.Kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.discounts.Stack(r.Context(), kind, req.Amount, req.DiscountIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			str(e, "kind", kind.String())
			dec(e, "amount", req.Amount)
			dec(e, "discount", b.Total)
			dec(e, "total", decimal.Max(decimal.Zero, req.Amount.Sub(b.Total)))
			encodeApplied(e, "applied", b.Applied)
		})
	})
}

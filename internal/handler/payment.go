package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/ecomify/internal/domain/order"
	"github.com/xenking/ecomify/internal/domain/payment"
)

type cardRequest struct {
	LastFourDigits string `json:"last_four_digits" validate:"required,len=4,numeric"`
	CardBrand      string `json:"card_brand" validate:"required"`
}

type payPalRequest struct {
	Email   string `json:"email" validate:"required,email"`
	PayerID string `json:"payer_id" validate:"required"`
}

type createPaymentRequest struct {
	OrderID       string         `json:"order_id" validate:"required"`
	TransactionID string         `json:"transaction_id" validate:"required"`
	Method        string         `json:"method" validate:"required,oneof=credit_card paypal"`
	Card          *cardRequest   `json:"card" validate:"required_if=Method credit_card,omitempty"`
	PayPal        *payPalRequest `json:"paypal" validate:"required_if=Method paypal,omitempty"`
}

type transitionRequest struct {
	Action        string          `json:"action" validate:"required"`
	Reference     string          `json:"reference"`
	Amount        decimal.Decimal `json:"amount"`
	GatewayStatus string          `json:"gateway_status"`
}

type gatewayCallbackRequest struct {
	Status    string `json:"status" validate:"required"`
	Reference string `json:"reference"`
}

func writePayment(w http.ResponseWriter, status int, p *payment.Payment) {
	writeJSON(w, status, func(e *jx.Encoder) { encodePayment(e, p) })
}

// authorizeOrder loads the order and hides it from non-owners.
func (h *Handler) authorizeOrder(r *http.Request, orderID string) error {
	o, err := h.orders.Get(r.Context(), orderID)
	if err != nil {
		return err
	}
	if !owns(caller(r), o.CustomerID) {
		return errors.Wrapf(order.ErrNotFound, "order %s", orderID)
	}
	return nil
}

func (req createPaymentRequest) details() payment.Details {
	if req.Method == payment.MethodPayPal.String() {
		return payment.PayPalDetails{Email: req.PayPal.Email, PayerID: req.PayPal.PayerID}
	}
	return payment.CreditCardDetails{LastFourDigits: req.Card.LastFourDigits, CardBrand: req.Card.CardBrand}
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.authorizeOrder(r, req.OrderID); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.payments.Create(r.Context(), payment.CreateRequest{
		OrderID:       req.OrderID,
		TransactionID: req.TransactionID,
		Details:       req.details(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePayment(w, http.StatusCreated, p)
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Get(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.authorizeOrder(r, p.OrderID()); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			err = payment.ErrNotFound
		}
		writeError(w, r, err)
		return
	}
	writePayment(w, http.StatusOK, p)
}

func (h *Handler) transitionPayment(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !decode(w, r, &req) {
		return
	}
	action, err := payment.ParseAction(req.Action)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.payments.Transition(r.Context(), chi.URLParam(r, "paymentID"), payment.TransitionRequest{
		Action:        action,
		Reference:     req.Reference,
		Amount:        req.Amount,
		GatewayStatus: req.GatewayStatus,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePayment(w, http.StatusOK, p)
}

// gatewayCallback maps a gateway status report onto the payment.
func (h *Handler) gatewayCallback(w http.ResponseWriter, r *http.Request) {
	var req gatewayCallbackRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.payments.Transition(r.Context(), chi.URLParam(r, "paymentID"), payment.TransitionRequest{
		Action:        payment.ActionGatewayUpdate,
		Reference:     req.Reference,
		GatewayStatus: req.Status,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePayment(w, http.StatusOK, p)
}

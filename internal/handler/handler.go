// Package handler exposes the order, cart, discount and payment services over
// a JSON HTTP API routed with chi.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/ecomify/internal/domain/auth"
	"github.com/xenking/ecomify/internal/domain/cart"
	"github.com/xenking/ecomify/internal/domain/discount"
	"github.com/xenking/ecomify/internal/domain/order"
	"github.com/xenking/ecomify/internal/domain/payment"
	"github.com/xenking/ecomify/internal/domain/product"
)

// Carts is the cart service used by the handler.
type Carts interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
	AddItem(ctx context.Context, userID, productID string, quantity int) (*cart.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (*cart.Cart, error)
	ApplyDiscounts(ctx context.Context, userID string, kind discount.Kind, ids []string) (*cart.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// Discounts is the discount service used by the handler.
type Discounts interface {
	Create(ctx context.Context, p discount.Params) (*discount.Discount, error)
	Get(ctx context.Context, id string) (*discount.Discount, error)
	Deactivate(ctx context.Context, id string) (*discount.Discount, error)
	Apply(ctx context.Context, orderAmount decimal.Decimal, req discount.ApplyRequest) (decimal.Decimal, error)
	Stack(ctx context.Context, kind discount.Kind, cartAmount decimal.Decimal, ids []string) (discount.Breakdown, error)
}

// Orders is the order service used by the handler.
type Orders interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.PlaceOrderResult, error)
	Get(ctx context.Context, id string) (*order.Order, error)
}

// Payments is the payment service used by the handler.
type Payments interface {
	Create(ctx context.Context, req payment.CreateRequest) (*payment.Payment, error)
	Get(ctx context.Context, id string) (*payment.Payment, error)
	Transition(ctx context.Context, id string, req payment.TransitionRequest) (*payment.Payment, error)
}

var (
	_ Carts     = (*cart.Service)(nil)
	_ Discounts = (*discount.Service)(nil)
	_ Orders    = (*order.Service)(nil)
	_ Payments  = (*payment.Service)(nil)
)

// Config holds non-dependency handler settings.
type Config struct {
	// ImageBaseURL is prepended to product image paths. Empty keeps them as stored.
	ImageBaseURL string
	// APIKeyPepper is the HMAC key API keys are hashed with.
	APIKeyPepper []byte
}

// Handler serves the API.
type Handler struct {
	products  product.Repository
	apikeys   auth.Repository
	carts     Carts
	discounts Discounts
	orders    Orders
	payments  Payments

	imageBaseURL string
	pepper       []byte
}

// New creates a Handler.
func New(
	cfg Config,
	products product.Repository,
	apikeys auth.Repository,
	carts Carts,
	discounts Discounts,
	orders Orders,
	payments Payments,
) *Handler {
	return &Handler{
		products:     products,
		apikeys:      apikeys,
		carts:        carts,
		discounts:    discounts,
		orders:       orders,
		payments:     payments,
		imageBaseURL: cfg.ImageBaseURL,
		pepper:       cfg.APIKeyPepper,
	}
}

// Routes returns the API router. Mount it under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
	})

	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.getCart)
			r.Delete("/", h.clearCart)
			r.Post("/items", h.addCartItem)
			r.Delete("/items/{productID}", h.removeCartItem)
			r.Post("/discounts", h.applyCartDiscounts)
		})

		r.Route("/discounts", func(r chi.Router) {
			r.With(requireScope(auth.ScopeAdmin)).Post("/", h.createDiscount)
			r.Post("/apply", h.applyDiscount)
			r.Post("/stack", h.stackDiscounts)
			r.Get("/{discountID}", h.getDiscount)
			r.With(requireScope(auth.ScopeAdmin)).Post("/{discountID}/deactivate", h.deactivateDiscount)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.placeOrder)
			r.Get("/{orderID}", h.getOrder)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.createPayment)
			r.Get("/{paymentID}", h.getPayment)
			r.Group(func(r chi.Router) {
				r.Use(requireScope(auth.ScopeAdmin))
				r.Post("/{paymentID}/transitions", h.transitionPayment)
				r.Post("/{paymentID}/gateway", h.gatewayCallback)
			})
		})
	})
	return r
}

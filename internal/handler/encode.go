package handler

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/ecomify/internal/domain/cart"
	"github.com/xenking/ecomify/internal/domain/discount"
	"github.com/xenking/ecomify/internal/domain/lineitem"
	"github.com/xenking/ecomify/internal/domain/money"
	"github.com/xenking/ecomify/internal/domain/order"
	"github.com/xenking/ecomify/internal/domain/payment"
	"github.com/xenking/ecomify/internal/domain/product"
)

// Amounts are encoded as decimal strings to keep them exact.

func str(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

func amount(e *jx.Encoder, name string, m money.Money) {
	str(e, name, m.Format())
}

func dec(e *jx.Encoder, name string, d decimal.Decimal) {
	str(e, name, d.StringFixed(2))
}

func timestamp(e *jx.Encoder, name string, t time.Time) {
	if t.IsZero() {
		e.Field(name, func(e *jx.Encoder) { e.Null() })
		return
	}
	str(e, name, t.UTC().Format(time.RFC3339Nano))
}

func strs(e *jx.Encoder, name string, vs []string) {
	e.Field(name, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, v := range vs {
				e.Str(v)
			}
		})
	})
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	base := h.imageBaseURL
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", p.ID)
		str(e, "name", p.Name)
		dec(e, "price", p.Price)
		str(e, "currency", string(p.Currency))
		str(e, "category", p.Category)
		e.Field("image", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				str(e, "thumbnail", base+p.Image.Thumbnail)
				str(e, "mobile", base+p.Image.Mobile)
				str(e, "tablet", base+p.Image.Tablet)
				str(e, "desktop", base+p.Image.Desktop)
			})
		})
	})
}

// basketFields writes the items and totals shared by carts and orders.
func basketFields(e *jx.Encoder, b *lineitem.Basket) {
	str(e, "currency", string(b.Currency()))
	e.Field("items", func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, it := range b.Items() {
				e.Obj(func(e *jx.Encoder) {
					str(e, "product_id", it.ProductID)
					e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
					amount(e, "unit_price", it.UnitPrice)
					amount(e, "total", it.Total())
				})
			}
		})
	})
	amount(e, "subtotal", b.TotalAmount())
	amount(e, "discount", b.DiscountAmount())
	amount(e, "total", b.TotalWithDiscount())
}

func kindField(e *jx.Encoder, k discount.Kind) {
	if !k.Valid() {
		e.Field("discount_kind", func(e *jx.Encoder) { e.Null() })
		return
	}
	str(e, "discount_kind", k.String())
}

func encodeCart(e *jx.Encoder, c *cart.Cart) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "user_id", c.UserID)
		basketFields(e, &c.Basket)
		kindField(e, c.DiscountKind)
		strs(e, "discount_ids", c.DiscountIDs)
		timestamp(e, "updated_at", c.UpdatedAt)
	})
}

func encodeApplied(e *jx.Encoder, name string, applied []discount.Applied) {
	e.Field(name, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, a := range applied {
				e.Obj(func(e *jx.Encoder) {
					str(e, "discount_id", a.DiscountID)
					dec(e, "amount", a.Amount)
				})
			}
		})
	})
}

func (h *Handler) encodeOrder(e *jx.Encoder, o *order.Order, products []product.Product) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", o.ID)
		str(e, "customer_id", o.CustomerID)
		basketFields(e, &o.Basket)
		kindField(e, o.DiscountKind)
		encodeApplied(e, "discounts", o.Discounts)
		timestamp(e, "created_at", o.CreatedAt)
		if products == nil {
			return
		}
		e.Field("products", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, p := range products {
					h.encodeProduct(e, p)
				}
			})
		})
	})
}

func nullDec(e *jx.Encoder, name string, d decimal.NullDecimal, conv func(decimal.Decimal) decimal.Decimal) {
	if !d.Valid {
		e.Field(name, func(e *jx.Encoder) { e.Null() })
		return
	}
	v := d.Decimal
	if conv != nil {
		v = conv(v)
	}
	str(e, name, v.String())
}

func encodeDiscount(e *jx.Encoder, d *discount.Discount) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", d.ID())
		if d.Code() != "" {
			str(e, "code", d.Code())
		}
		str(e, "kind", d.Kind().String())
		nullDec(e, "fixed_amount", d.FixedAmount(), nil)
		nullDec(e, "percentage", d.Percentage(), discount.FractionToPercent)
		e.Field("max_uses", func(e *jx.Encoder) { e.Int(d.MaxUses()) })
		e.Field("uses", func(e *jx.Encoder) { e.Int(d.Uses()) })
		dec(e, "min_order_amount", d.MinOrderAmount())
		e.Field("max_uses_per_user", func(e *jx.Encoder) { e.Int(d.MaxUsesPerUser()) })
		timestamp(e, "valid_from", d.ValidFrom())
		timestamp(e, "valid_to", d.ValidTo())
		e.Field("active", func(e *jx.Encoder) { e.Bool(d.IsActive()) })
		e.Field("auto_apply", func(e *jx.Encoder) { e.Bool(d.AutoApply()) })
		timestamp(e, "created_at", d.CreatedAt())
	})
}

func encodeDetails(e *jx.Encoder, d payment.Details) {
	payment.MatchDetails(d,
		func(c payment.CreditCardDetails) struct{} {
			e.Obj(func(e *jx.Encoder) {
				str(e, "last_four_digits", c.LastFourDigits)
				str(e, "card_brand", c.CardBrand)
			})
			return struct{}{}
		},
		func(p payment.PayPalDetails) struct{} {
			e.Obj(func(e *jx.Encoder) {
				str(e, "email", p.Email)
				str(e, "payer_id", p.PayerID)
			})
			return struct{}{}
		},
	)
}

func encodePayment(e *jx.Encoder, p *payment.Payment) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", p.ID())
		str(e, "order_id", p.OrderID())
		amount(e, "amount", p.Amount())
		str(e, "currency", string(p.Amount().Currency()))
		str(e, "method", p.Method().String())
		str(e, "status", p.Status().String())
		str(e, "transaction_id", p.TransactionID())
		timestamp(e, "processed_at", p.ProcessedAt())
		if p.GatewayResponse() != "" {
			str(e, "gateway_response", p.GatewayResponse())
		}
		nullDec(e, "refund_amount", p.RefundAmount(), nil)
		e.Field("details", func(e *jx.Encoder) { encodeDetails(e, p.Details()) })
		e.Field("history", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, c := range p.History() {
					e.Obj(func(e *jx.Encoder) {
						str(e, "id", c.ID)
						str(e, "status", c.Status.String())
						timestamp(e, "timestamp", c.Timestamp)
						if c.Reference != "" {
							str(e, "reference", c.Reference)
						}
					})
				}
			})
		})
	})
}

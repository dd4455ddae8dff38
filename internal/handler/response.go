package handler

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/ecomify/internal/domain/failure"
)

var (
	errRouteNotFound    = failure.NotFound("route.not_found", "route not found")
	errMethodNotAllowed = &failure.Error{Code: "route.method_not_allowed", Message: "method not allowed"}
)

const (
	codeMalformed = "request.malformed"
	codeInvalid   = "request.invalid"
	codeInternal  = "internal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// decode reads a JSON body into v and validates its tags. Errors are written
// to w and reported by returning false.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, &failure.Error{Code: codeMalformed, Message: "malformed JSON body: " + err.Error()})
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, r, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, enc func(e *jx.Encoder)) {
	var e jx.Encoder
	enc(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// statusOf maps a failure kind to its HTTP status.
func statusOf(k failure.Kind) int {
	switch k {
	case failure.KindValidation:
		return http.StatusUnprocessableEntity
	case failure.KindNotFound:
		return http.StatusNotFound
	case failure.KindConflict:
		return http.StatusConflict
	case failure.KindUnauthorized:
		return http.StatusUnauthorized
	case failure.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

// writeError renders err as {"code","message","fields"}. Domain failures keep
// their code; anything else is logged and hidden behind a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]failure.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, failure.FieldError{Field: fieldPath(fe), Message: describe(fe)})
		}
		err = failure.Validation(codeInvalid, "request validation failed", fields...)
	}

	fe, ok := failure.As(err)
	if !ok {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		fe = &failure.Error{Code: codeInternal, Message: "internal server error"}
	}
	status := http.StatusInternalServerError
	if ok {
		status = statusOf(fe.Kind)
	}
	writeFailure(w, status, fe)
}

func writeFailure(w http.ResponseWriter, status int, fe *failure.Error) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Str(fe.Code) })
			e.Field("message", func(e *jx.Encoder) { e.Str(fe.Message) })
			if len(fe.Fields) == 0 {
				return
			}
			e.Field("fields", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, f := range fe.Fields {
						e.Obj(func(e *jx.Encoder) {
							e.Field("field", func(e *jx.Encoder) { e.Str(f.Field) })
							e.Field("message", func(e *jx.Encoder) { e.Str(f.Message) })
						})
					}
				})
			})
		})
	})
}

// fieldPath drops the root struct name: "placeOrderRequest.items[0].quantity"
// becomes "items[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " long"
	case "len":
		return "must be exactly " + fe.Param() + " long"
	case "email":
		return "must be a valid email address"
	case "numeric":
		return "must be numeric"
	case "dive":
		return "invalid element"
	default:
		return "invalid value"
	}
}

package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/user"
)

// badRequestError is a malformed request detected by the transport itself.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

// statusFor maps domain errors to HTTP status codes. The message is only
// sent to the client for codes below 500.
func statusFor(err error) int {
	var (
		badReq     *badRequestError
		mismatch   *catalog.VariantMismatchError
		quantity   *order.InvalidQuantityError
		amount     *order.InsufficientAmountError
		transition *order.InvalidTransitionError
		declined   *order.PaymentDeclinedError
		gateway    *order.PaymentGatewayError
	)
	switch {
	case errors.As(err, &badReq),
		errors.As(err, &mismatch),
		errors.Is(err, catalog.ErrColorWithoutVersion),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, order.ErrEmptyItems),
		errors.As(err, &quantity),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrInvalidPaymentMethod),
		errors.Is(err, order.ErrPaymentTokenRequired),
		errors.As(err, &amount):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, user.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, cart.ErrLineNotFound):
		return http.StatusNotFound
	case errors.As(err, &transition),
		errors.Is(err, order.ErrOrderLocked):
		return http.StatusConflict
	case errors.As(err, &declined):
		return http.StatusPaymentRequired
	case errors.As(err, &gateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"code","message"}. Server side failures are
// logged with their cause and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	switch code {
	case http.StatusInternalServerError:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal server error"
	case http.StatusBadGateway:
		zctx.From(r.Context()).Error("Payment gateway failed", zap.Error(err))
		msg = "payment gateway unavailable"
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(code) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	})
	writeBody(w, code, e.Bytes())
}

func writeBody(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

// writeJSON encodes a success response with fn.
func writeJSON(w http.ResponseWriter, code int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	writeBody(w, code, e.Bytes())
}

package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/catalog"
	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/identity"
	"github.com/xenking/storefront/internal/domain/product"
)

// LoginPath is where clients are sent when authentication is required.
const LoginPath = "/login"

// maxBodySize bounds request bodies.
const maxBodySize = 64 << 10

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("malformed request body")

type apiError struct {
	status   int
	message  string
	field    string
	redirect string
}

func (e apiError) encode(enc *jx.Encoder) {
	enc.ObjStart()
	enc.FieldStart("code")
	enc.Int(e.status)
	enc.FieldStart("message")
	enc.Str(e.message)
	if e.field != "" {
		enc.FieldStart("field")
		enc.Str(e.field)
	}
	if e.redirect != "" {
		enc.FieldStart("redirect")
		enc.Str(e.redirect)
	}
	enc.ObjEnd()
}

// mapError converts a domain error into its HTTP representation.
func mapError(err error) apiError {
	var (
		verr *apperr.ValidationError
		perr *apperr.PersistenceError
	)
	switch {
	case errors.As(err, &verr):
		return apiError{status: http.StatusUnprocessableEntity, message: verr.Message, field: verr.Field}
	case errors.Is(err, apperr.ErrAuthRequired):
		return apiError{status: http.StatusUnauthorized, message: "must authenticate", redirect: LoginPath}
	case errors.Is(err, identity.ErrInvalidCredentials):
		return apiError{status: http.StatusUnauthorized, message: "invalid email or password"}
	case errors.Is(err, identity.ErrEmailTaken):
		return apiError{status: http.StatusConflict, message: "email already registered"}
	case errors.Is(err, identity.ErrPopupClosed):
		return apiError{status: http.StatusBadRequest, message: "sign-in cancelled"}
	case errors.Is(err, identity.ErrFederatedDisabled):
		return apiError{status: http.StatusNotFound, message: "federated sign-in is not configured"}
	case errors.Is(err, identity.ErrNetwork):
		return apiError{status: http.StatusBadGateway, message: "identity provider unavailable"}
	case errors.Is(err, errBadRequest):
		return apiError{status: http.StatusBadRequest, message: errBadRequest.Error()}
	case errors.Is(err, product.ErrNotFound):
		return apiError{status: http.StatusNotFound, message: "product not found"}
	case errors.Is(err, catalog.ErrUnavailable):
		return apiError{status: http.StatusServiceUnavailable, message: "catalog temporarily unavailable"}
	case errors.As(err, &perr):
		return apiError{status: http.StatusServiceUnavailable, message: "storage temporarily unavailable, try again"}
	default:
		return apiError{status: http.StatusInternalServerError, message: "internal server error"}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := mapError(err)
	lg := zctx.From(r.Context())
	switch {
	case e.status >= http.StatusInternalServerError:
		lg.Error("Request failed", zap.Error(err))
	case e.status == http.StatusBadGateway || e.status == http.StatusServiceUnavailable:
		lg.Warn("Dependency failed", zap.Error(err))
	}

	var enc jx.Encoder
	e.encode(&enc)
	writeJSON(w, e.status, enc.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// respond encodes a body with fn and writes it with status.
func respond(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	writeJSON(w, status, e.Bytes())
}

// decodeBody runs fn on the JSON request body. An empty body is decoded as
// an empty object.
func decodeBody(r *http.Request, fn func(d *jx.Decoder) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodySize))
	if err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	if len(data) == 0 {
		data = []byte("{}")
	}
	if err := fn(jx.DecodeBytes(data)); err != nil {
		if apperr.IsValidation(err) {
			return err
		}
		return errors.Wrap(errBadRequest, err.Error())
	}
	return nil
}

package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/identity"
	"github.com/xenking/storefront/internal/domain/session"
)

// Cookie session keys.
const (
	keySessionID = "sid"
	keyUID       = "uid"
	keyEmail     = "email"
	keyName      = "name"
	keyPhotoURL  = "photoUrl"
	keyProvider  = "provider"
	keyState     = "oauthState"
)

type sessionKey struct{}

// sessionFrom returns the session bound by bindSession.
func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey{}).(*session.Session)
	return s
}

// bindSession attaches the live session of the cookie session to the request.
// A session rebuilt after a restart or eviction gets its identity restored
// from the cookie session, which merges any device cart again.
func (h *Handler) bindSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sid := h.cookies.GetString(ctx, keySessionID)
		if sid == "" {
			sid = uuid.NewString()
			h.cookies.Put(ctx, keySessionID, sid)
		}
		ctx = zctx.With(ctx, zap.String("session_id", sid))

		s, created := h.sessions.Get(ctx, sid)
		if created {
			if id, ok := h.storedIdentity(ctx); ok {
				s.Identity.Restore(ctx, id)
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, sessionKey{}, s)))
	})
}

func (h *Handler) storedIdentity(ctx context.Context) (identity.Identity, bool) {
	uid := h.cookies.GetString(ctx, keyUID)
	if uid == "" {
		return identity.Identity{}, false
	}
	return identity.Identity{
		UID:      uid,
		Email:    h.cookies.GetString(ctx, keyEmail),
		Name:     h.cookies.GetString(ctx, keyName),
		PhotoURL: h.cookies.GetString(ctx, keyPhotoURL),
		Provider: h.cookies.GetString(ctx, keyProvider),
	}, true
}

// rememberIdentity stores id in the cookie session under a fresh token.
func (h *Handler) rememberIdentity(ctx context.Context, id *identity.Identity) error {
	if err := h.cookies.RenewToken(ctx); err != nil {
		return errors.Wrap(err, "renew session token")
	}
	h.cookies.Put(ctx, keyUID, id.UID)
	h.cookies.Put(ctx, keyEmail, id.Email)
	h.cookies.Put(ctx, keyName, id.Name)
	h.cookies.Put(ctx, keyPhotoURL, id.PhotoURL)
	h.cookies.Put(ctx, keyProvider, id.Provider)
	return nil
}

// forgetIdentity removes the identity from the cookie session, keeping the
// session id and with it the device cart.
func (h *Handler) forgetIdentity(ctx context.Context) error {
	for _, k := range []string{keyUID, keyEmail, keyName, keyPhotoURL, keyProvider} {
		h.cookies.Remove(ctx, k)
	}
	if err := h.cookies.RenewToken(ctx); err != nil {
		return errors.Wrap(err, "renew session token")
	}
	return nil
}

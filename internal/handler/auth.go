package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/identity"
	"github.com/xenking/storefront/internal/domain/session"
)

// SignUp registers a password account and signs it in.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var cred identity.Credentials
	if err := decodeBody(r, func(d *jx.Decoder) (err error) {
		cred, err = decodeCredentials(d)
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	s := sessionFrom(r.Context())
	id, err := s.Identity.SignUpWithPassword(r.Context(), cred)
	h.signedIn(w, r, s, id, http.StatusCreated, err)
}

// SignIn authenticates with email and password.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var cred identity.Credentials
	if err := decodeBody(r, func(d *jx.Decoder) (err error) {
		cred, err = decodeCredentials(d)
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	s := sessionFrom(r.Context())
	id, err := s.Identity.SignInWithPassword(r.Context(), cred.Email, cred.Password)
	h.signedIn(w, r, s, id, http.StatusOK, err)
}

// SignOut clears the identity. The cart view switches back to the device
// cart.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionFrom(ctx).Identity.SignOut(ctx)
	if err := h.forgetIdentity(ctx); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Refresh re-emits the current identity, as a token refresh does. It never
// merges again.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	s.Identity.Refresh(r.Context())
	h.Me(w, r)
}

// Me returns the signed-in identity.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	id := s.Identity.Current()
	if id == nil {
		writeError(w, r, apperr.ErrAuthRequired)
		return
	}
	writeIdentity(w, s, id, http.StatusOK)
}

// FederatedLogin redirects to the identity provider's consent page.
func (h *Handler) FederatedLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state := uuid.NewString()
	url, err := sessionFrom(ctx).Identity.FederatedURL(state)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.cookies.Put(ctx, keyState, state)
	http.Redirect(w, r, url, http.StatusFound)
}

// FederatedCallback completes the authorization code flow and redirects to
// the storefront.
func (h *Handler) FederatedCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	want := h.cookies.PopString(ctx, keyState)
	if want == "" || q.Get("state") != want {
		writeError(w, r, apperr.Validation("state", "sign-in state mismatch"))
		return
	}
	if q.Get("error") != "" {
		writeError(w, r, identity.ErrPopupClosed)
		return
	}

	id, err := sessionFrom(ctx).Identity.CompleteFederated(ctx, q.Get("code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.rememberIdentity(ctx, id); err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, h.afterLoginURL, http.StatusFound)
}

func (h *Handler) signedIn(w http.ResponseWriter, r *http.Request, s *session.Session, id *identity.Identity, status int, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.rememberIdentity(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeIdentity(w, s, id, status)
}

// writeIdentity writes {"user":{...},"mergePending":false}. mergePending is
// true when the device cart could not be merged yet; the merge is retried
// before the next cart operation.
func writeIdentity(w http.ResponseWriter, s *session.Session, id *identity.Identity, status int) {
	respond(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("user")
		encodeIdentity(e, id)
		e.FieldStart("mergePending")
		e.Bool(s.Binder.MergePending())
		e.ObjEnd()
	})
}

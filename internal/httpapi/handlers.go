package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/gate"
)

const (
	refreshCookieName = "refreshToken"
	refreshCookiePath = "/auth"
	maxBodyBytes      = 16 << 10
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type profileResponse struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type paymentResponse struct {
	UserID      string     `json:"userId"`
	Feature     string     `json:"feature"`
	LastPayment *time.Time `json:"lastPayment"`
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		gate.WriteError(w, http.StatusBadRequest)
		return
	}

	pair, err := a.svc.Login(withClientIP(r), req.Username, req.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.setRefreshCookie(w, pair)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		gate.WriteError(w, http.StatusBadRequest)
		return
	}
	if req.RefreshToken == "" {
		if c, err := r.Cookie(refreshCookieName); err == nil {
			req.RefreshToken = c.Value
		}
	}

	pair, err := a.svc.Refresh(withClientIP(r), req.RefreshToken)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.setRefreshCookie(w, pair)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := gate.IdentityFromContext(r.Context())
	if !ok {
		gate.WriteError(w, http.StatusUnauthorized)
		return
	}

	if err := a.svc.Logout(withClientIP(r), identity.ID); err != nil {
		a.fail(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

func (a *api) profile(w http.ResponseWriter, r *http.Request) {
	identity, ok := gate.IdentityFromContext(r.Context())
	if !ok {
		gate.WriteError(w, http.StatusUnauthorized)
		return
	}
	roles := identity.Roles
	if roles == nil {
		roles = []string{}
	}
	writeJSON(w, http.StatusOK, profileResponse{ID: identity.ID, Username: identity.Username, Roles: roles})
}

func (a *api) lastPayment(w http.ResponseWriter, r *http.Request) {
	identity, _ := gate.IdentityFromContext(r.Context())
	resp := paymentResponse{Feature: FeatureDebt}
	if identity != nil {
		resp.UserID = identity.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := goGuard.PublicError(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error(err, "request failed", "path", r.URL.Path, "status", status)
	}
	gate.WriteError(w, status)
}

func (a *api) setRefreshCookie(w http.ResponseWriter, pair goGuard.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    pair.RefreshToken,
		Path:     refreshCookiePath,
		Expires:  pair.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func withClientIP(r *http.Request) context.Context {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return goGuard.WithClientIP(r.Context(), host)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

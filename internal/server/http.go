package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Guneet-Singh-Kalra/orbital/internal/auth"
	"github.com/Guneet-Singh-Kalra/orbital/internal/game"
	"github.com/Guneet-Singh-Kalra/orbital/internal/geo"
	"github.com/Guneet-Singh-Kalra/orbital/internal/strike"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 14

type handlers struct {
	scanner     *game.Scanner
	coordinator *game.Coordinator
	verifier    auth.Verifier
	push        *PushHub
	log         *zap.Logger
}

/* ------------------------------- HTTP ------------------------------- */

func newMux(h *handlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.health)
	mux.Handle("POST /api/presence", h.authed(h.reportPosition))
	mux.Handle("POST /api/scan", h.authed(h.scan))
	mux.Handle("POST /api/attack", h.authed(h.attack))
	mux.Handle("POST /api/shield", h.authed(h.shield))
	mux.Handle("GET /api/strikes/{id}", h.authed(h.strike))
	mux.Handle("GET /api/ws", h.authed(h.ws))
	return mux
}

// authed resolves the bearer token before next runs.
func (h *handlers) authed(next func(w http.ResponseWriter, r *http.Request, playerID string)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		playerID, err := h.verifier.Verify(r.Context(), auth.BearerToken(r))
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				err = fmt.Errorf("%w: %w", auth.ErrUnauthorized, err)
			}
			h.writeError(w, r, err)
			return
		}
		next(w, r.WithContext(auth.WithPlayer(r.Context(), playerID)), playerID)
	})
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Message: "healthy"})
}

func (h *handlers) reportPosition(w http.ResponseWriter, r *http.Request, playerID string) {
	loc, err := decodeLocation(w, r, "location")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.scanner.ReportPosition(r.Context(), playerID, loc); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) scan(w http.ResponseWriter, r *http.Request, playerID string) {
	loc, err := decodeLocation(w, r, "location")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	players, err := h.scanner.Scan(r.Context(), playerID, loc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{Players: players})
}

func (h *handlers) attack(w http.ResponseWriter, r *http.Request, playerID string) {
	target, err := decodeLocation(w, r, "target")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ticket, err := h.coordinator.InitiateStrike(r.Context(), playerID, target)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *handlers) shield(w http.ResponseWriter, r *http.Request, playerID string) {
	until, err := h.coordinator.ActivateShield(r.Context(), playerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shieldResponse{ActiveUntil: until.UTC()})
}

func (h *handlers) strike(w http.ResponseWriter, r *http.Request, playerID string) {
	rec, err := h.coordinator.Strike(r.Context(), playerID, r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, strikeToDTO(rec))
}

func (h *handlers) ws(w http.ResponseWriter, r *http.Request, playerID string) {
	h.push.ServeWS(w, r, playerID)
}

func decodeLocation(w http.ResponseWriter, r *http.Request, field string) (geo.LatLng, error) {
	var req latLngRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		return geo.LatLng{}, &game.ValidationError{Field: "body", Reason: err.Error()}
	}
	return req.location(field)
}

/* ------------------------------ Errors ------------------------------ */

// statusFor maps service errors to HTTP status and error code. Weapon and
// shield cooldowns are checked before the generic cooldown they wrap.
func statusFor(err error) (int, string) {
	var validation *game.ValidationError
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.As(err, &validation):
		return http.StatusBadRequest, "ValidationError"
	case errors.Is(err, game.ErrPlayerDead):
		return http.StatusForbidden, "PlayerDead"
	case errors.Is(err, game.ErrWeaponCooldown):
		return http.StatusTooManyRequests, "WeaponCooldown"
	case errors.Is(err, game.ErrShieldCooldown):
		return http.StatusTooManyRequests, "ShieldCooldown"
	case errors.Is(err, game.ErrCooldownActive):
		return http.StatusForbidden, "CooldownActive"
	case errors.Is(err, strike.ErrNotFound):
		return http.StatusNotFound, "NotFound"
	case errors.Is(err, game.ErrStoreUnavailable):
		return http.StatusInternalServerError, "StoreUnavailable"
	default:
		return http.StatusInternalServerError, "Internal"
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	body := errorResponse{Error: code, Message: err.Error()}

	var cd *game.CooldownError
	if errors.As(err, &cd) && !cd.AvailableAt.IsZero() {
		at := cd.AvailableAt.UTC()
		body.AvailableAt = &at
	}

	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		body.Message = "internal error"
	} else {
		h.log.Debug("request rejected",
			zap.String("path", r.URL.Path),
			zap.String("code", code),
			zap.Error(err))
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

/**
 * @description
 * HTTP handlers for wallet verification.
 */
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Salmandabbakuti/xenea-discord-bot/internal/app"
	"github.com/Salmandabbakuti/xenea-discord-bot/internal/domain"
)

const maxVerifyBodyBytes = 16 << 10

// Verifier processes verification proofs.
type Verifier interface {
	Verify(ctx context.Context, req domain.VerifyRequest) (*domain.VerificationOutcome, error)
}

// Handler holds the application service that handlers will interact with.
type Handler struct {
	verifier Verifier
	logger   *slog.Logger
}

// NewHandler creates a new Handler with the given verifier.
func NewHandler(verifier Verifier, logger *slog.Logger) *Handler {
	return &Handler{verifier: verifier, logger: logger}
}

type statusResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

type failure struct {
	status  int
	message string
}

var failures = map[string]failure{
	app.ReasonMissingFields:          {http.StatusBadRequest, "Missing required fields: token, address, message and signature"},
	app.ReasonTokenExpiredOrInvalid:  {http.StatusUnauthorized, "Verification link is invalid or has expired"},
	app.ReasonSignatureMismatch:      {http.StatusUnauthorized, "Invalid wallet signature"},
	app.ReasonCommunityNotConfigured: {http.StatusServiceUnavailable, "Server is not configured for verification"},
	app.ReasonInternalFailure:        {http.StatusInternalServerError, "Something went wrong while verifying your wallet"},
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxVerifyBodyBytes)

	var req domain.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debug("invalid verify request body", "error", err)
		respondWithError(w, http.StatusBadRequest, app.ReasonMissingFields, "Invalid request body")
		return
	}

	if _, err := h.verifier.Verify(r.Context(), req); err != nil {
		reason := app.ReasonFor(err)
		f := failures[reason]
		respondWithError(w, f.status, reason, f.message)
		return
	}

	respondWithJSON(w, http.StatusOK, statusResponse{Code: "ok", Message: "Success"})
}

func respondWithError(w http.ResponseWriter, status int, reason, message string) {
	respondWithJSON(w, status, statusResponse{
		Code:    http.StatusText(status),
		Message: message,
		Reason:  reason,
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

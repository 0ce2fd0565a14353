package handler

import (
	"log/slog"
	"net/http"

	"travelpay/internal/mw"
)

// CSRFTokenHandler issues a fresh anti-forgery token bound to the caller's session,
// starting a session when there is none.
func CSRFTokenHandler(sessions *mw.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sessionID string
		if claims, err := sessions.Parse(r); err == nil {
			sessionID = claims.ID
		}

		token, id, err := sessions.Issue(w, sessionID)
		if err != nil {
			slog.Error("csrf token generation failed", "error", err)
			http.Error(w, "token generation failed", http.StatusInternalServerError)
			return
		}

		slog.Debug("csrf token issued", "session_id", id)
		writeJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
	}
}

func CheckSessionHandler(sessions *mw.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := sessions.Parse(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"valid": false, "error": "No session found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"valid": true, "sessionId": claims.ID})
	}
}

package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/foodrun/internal/domain/apperr"
	"github.com/xenking/foodrun/internal/domain/challenge"
)

// StartChallenge serves POST /api/challenges/start {orderId, difficulty}.
func (h *Handler) StartChallenge(w http.ResponseWriter, r *http.Request) {
	var orderID, difficulty string
	err := decodeObject(w, r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "orderId":
			orderID, err = d.Str()
		case "difficulty":
			difficulty, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	ticket, err := h.challenges.Start(r.Context(), caller(r).Subject, orderID, challenge.Difficulty(difficulty))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	respond(w, http.StatusCreated, func(e *jx.Encoder) { encodeTicket(e, ticket) })
}

// InspectChallenge serves GET /api/challenges/session?token=.
func (h *Handler) InspectChallenge(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(r.Context(), w, apperr.Invalid("token", "required"))
		return
	}
	s, err := h.challenges.Inspect(r.Context(), token)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) { encodeSession(e, s) })
}

// CompleteChallenge serves POST /api/challenges/complete {token}.
func (h *Handler) CompleteChallenge(w http.ResponseWriter, r *http.Request) {
	token, ok := h.sessionToken(w, r)
	if !ok {
		return
	}
	reward, err := h.challenges.Complete(r.Context(), token)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) { encodeReward(e, reward) })
}

// FailChallenge serves POST /api/challenges/fail {token}.
func (h *Handler) FailChallenge(w http.ResponseWriter, r *http.Request) {
	token, ok := h.sessionToken(w, r)
	if !ok {
		return
	}
	if err := h.challenges.Fail(r.Context(), token); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sessionToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	var token string
	err := decodeObject(w, r, func(d *jx.Decoder, key string) (err error) {
		if key != "token" {
			return d.Skip()
		}
		token, err = d.Str()
		return err
	})
	if err == nil && token == "" {
		err = apperr.Invalid("token", "required")
	}
	if err != nil {
		writeError(r.Context(), w, err)
		return "", false
	}
	return token, true
}

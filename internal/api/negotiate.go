package api

import (
	"net/http"
	"time"

	sdkerrors "cosmossdk.io/errors"
	"go.uber.org/zap"

	"bargain-engine/internal/engine"
)

type startRequest struct {
	ProductID string `json:"product_id"`
	BuyerName string `json:"buyer_name,omitempty"`
	// Language is an optional BCP-47-ish hint ("hi", "ta") the dialogue
	// layer folds into its prompt; empty means the default Hinglish.
	Language string `json:"language,omitempty"`
}

type offerRequest struct {
	Message string  `json:"message,omitempty"`
	Price   float64 `json:"price"`
}

// statusView is the compact read model for polling clients.
type statusView struct {
	SessionID          string       `json:"session_id"`
	State              engine.State `json:"state"`
	CurrentRound       int          `json:"current_round"`
	MaxRounds          int          `json:"max_rounds"`
	CurrentSellerPrice float64      `json:"current_seller_price"`
	AgreedPrice        *float64     `json:"agreed_price,omitempty"`
	BotScore           float64      `json:"bot_score"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "product_id is required")
		return
	}

	ip := clientIP(r)
	allowed, err := s.gate.AllowIP(r.Context(), ip, s.cfg.MaxRequestsPerMinutePerIP)
	if err != nil {
		// Rate limiter down must not take the API with it.
		s.log.Warn("ip rate limiter unavailable", zap.Error(err))
		allowed = true
	}
	if !allowed {
		s.metrics.RateLimitHits.WithLabelValues("ip").Inc()
		writeErr(w, engine.ErrRateLimited.Wrap("too many requests, retry in a minute"))
		return
	}

	resp, err := s.svc.Start(r.Context(), req.ProductID, req.BuyerName, ip, req.Language)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	sid, err := sessionID(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	var req offerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.Price <= 0 {
		writeError(w, http.StatusBadRequest, "price must be positive")
		return
	}

	if _, err := s.authorizedSession(r, sid); err != nil {
		writeErr(w, err)
		return
	}

	cooling, err := s.gate.InCooldown(r.Context(), sid)
	if err != nil {
		s.log.Warn("cooldown check unavailable", zap.Error(err))
		cooling = false
	}
	if cooling {
		s.metrics.RateLimitHits.WithLabelValues("cooldown").Inc()
		writeErr(w, engine.ErrRateLimited.Wrap("responding too fast, wait a moment"))
		return
	}

	resp, err := s.svc.Negotiate(r.Context(), sid, req.Message, req.Price)
	if err != nil {
		if sdkerrors.IsOf(err, engine.ErrConflict) {
			s.metrics.RateLimitHits.WithLabelValues("lock").Inc()
		}
		writeErr(w, err)
		return
	}

	// Cooldown starts only after a delivered turn, so a rejected request
	// doesn't push the next legitimate one out.
	delay := time.Duration(s.cfg.MinResponseDelayMS) * time.Millisecond
	if err := s.gate.SetCooldown(r.Context(), sid, delay); err != nil {
		s.log.Warn("set cooldown failed", zap.String("session_id", sid), zap.Error(err))
	}

	writeJSON(w, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sid, err := sessionID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	session, err := s.authorizedSession(r, sid)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, statusView{
		SessionID:          session.SessionID,
		State:              session.State,
		CurrentRound:       session.CurrentRound,
		MaxRounds:          session.MaxRounds,
		CurrentSellerPrice: session.CurrentSellerPrice,
		AgreedPrice:        session.AgreedPrice,
		BotScore:           session.BotScore,
	})
}

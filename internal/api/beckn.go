package api

import (
	"net/http"
	"strconv"

	"bargain-engine/internal/negotiation"
	"bargain-engine/internal/protocol"
)

// handleBecknSelect maps a Beckn /select call onto the negotiation service:
// an envelope carrying a session id continues that negotiation, anything
// else opens one. The reply is the on_select quote + counter.
func (s *Server) handleBecknSelect(w http.ResponseWriter, r *http.Request) {
	var req protocol.SelectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	items := req.Message.Order.Items
	if len(items) == 0 {
		writeError(w, http.StatusBadRequest, "order must contain at least one item")
		return
	}
	item := items[0]
	if item.ID == "" {
		writeError(w, http.StatusBadRequest, "item id is required")
		return
	}

	var (
		resp *negotiation.Response
		err  error
	)
	if nego := req.Message.Order.Negotiation; nego != nil && nego.SessionID != "" {
		if !sessionIDRe.MatchString(nego.SessionID) {
			writeError(w, http.StatusBadRequest, "negotiation.session_id must be 32 lowercase hex chars")
			return
		}
		price, perr := strconv.ParseFloat(item.Price.Value, 64)
		if perr != nil || price <= 0 {
			writeError(w, http.StatusBadRequest, "item price.value must be a positive number")
			return
		}
		resp, err = s.svc.Negotiate(r.Context(), nego.SessionID, item.Tags.Message, price)
	} else {
		resp, err = s.svc.Start(r.Context(), item.ID, "", clientIP(r), "")
	}
	if err != nil {
		writeErr(w, err)
		return
	}

	out := protocol.BuildOnSelectResponse(protocol.NegotiationResult{
		SessionID:       resp.SessionID,
		State:           string(resp.State),
		Round:           resp.Round,
		Message:         resp.Message,
		CurrentPrice:    resp.CurrentPrice,
		QuoteTTLSeconds: resp.QuoteTTLSeconds,
	}, req.Context)
	writeJSON(w, out)
}

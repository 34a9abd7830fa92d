package protocol

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Context is the Beckn envelope header carried on every protocol message.
type Context struct {
	Domain        string    `json:"domain"`
	Action        string    `json:"action"`
	TransactionID string    `json:"transaction_id"`
	MessageID     string    `json:"message_id"`
	Timestamp     time.Time `json:"timestamp"`
	TTL           string    `json:"ttl"`
}

// SelectRequest is an inbound /select call: the buyer signals interest in
// an item, optionally with a price and an ongoing negotiation session.
type SelectRequest struct {
	Context Context       `json:"context"`
	Message SelectMessage `json:"message"`
}

type SelectMessage struct {
	Order SelectOrder `json:"order"`
}

type SelectOrder struct {
	Items       []SelectItem       `json:"items"`
	Negotiation *SelectNegotiation `json:"negotiation,omitempty"`
}

type SelectItem struct {
	ID    string    `json:"id"`
	Price ItemPrice `json:"price"`
	Tags  ItemTags  `json:"tags"`
}

type ItemPrice struct {
	Currency string `json:"currency,omitempty"`
	Value    string `json:"value"`
}

type ItemTags struct {
	Message string `json:"message,omitempty"`
}

type SelectNegotiation struct {
	SessionID string `json:"session_id"`
}

// OnSelectResponse answers a /select with a quote and the negotiation
// counter-move.
type OnSelectResponse struct {
	Context Context         `json:"context"`
	Message OnSelectMessage `json:"message"`
}

type OnSelectMessage struct {
	Order OnSelectOrder `json:"order"`
}

type OnSelectOrder struct {
	Quote       Quote           `json:"quote"`
	Negotiation NegotiationInfo `json:"negotiation"`
}

// NegotiationInfo is the seller-side counter embedded in on_select.
type NegotiationInfo struct {
	SessionID     string `json:"session_id"`
	State         string `json:"state"`
	Round         int    `json:"round"`
	SellerMessage string `json:"seller_message"`
}

// NegotiationResult is the slice of a negotiation turn the protocol layer
// needs to build on_select. Callers map their own response type into it.
type NegotiationResult struct {
	SessionID       string
	State           string
	Round           int
	Message         string
	CurrentPrice    float64
	QuoteTTLSeconds int
}

// BuildOnSelectResponse maps a negotiation turn to the Beckn on_select
// envelope. The context echoes the caller's domain and transaction id
// with a fresh message id.
func BuildOnSelectResponse(res NegotiationResult, original Context) OnSelectResponse {
	return OnSelectResponse{
		Context: Context{
			Domain:        original.Domain,
			Action:        "on_select",
			TransactionID: original.TransactionID,
			MessageID:     newMessageID(),
			Timestamp:     time.Now().UTC(),
			TTL:           "PT1M",
		},
		Message: OnSelectMessage{
			Order: OnSelectOrder{
				Quote: BuildQuote(res.CurrentPrice, res.QuoteTTLSeconds, 0, 0),
				Negotiation: NegotiationInfo{
					SessionID:     res.SessionID,
					State:         res.State,
					Round:         res.Round,
					SellerMessage: res.Message,
				},
			},
		},
	}
}

// newMessageID returns a 32-char lowercase hex id (uuid4 without dashes),
// the id format Beckn peers expect.
func newMessageID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

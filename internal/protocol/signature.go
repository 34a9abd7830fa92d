package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Agreement is the tamper-evident record of a completed negotiation,
// attached to the response and the stored session when a deal closes.
type Agreement struct {
	SessionID   string    `json:"session_id" bson:"session_id"`
	ProductID   string    `json:"product_id" bson:"product_id"`
	AgreedPrice float64   `json:"agreed_price" bson:"agreed_price"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
	Signature   string    `json:"signature" bson:"signature"`
	Algorithm   string    `json:"algorithm" bson:"algorithm"`
}

// SignAgreement digests the deal terms into an Agreement. This is a stub:
// a SHA-256 over the canonical payload, not asymmetric crypto. It proves
// nothing to a third party and must be replaced with real signing
// (Ed25519/RSA) before settlement depends on it.
func SignAgreement(sessionID, productID string, agreedPrice float64, at time.Time) Agreement {
	at = at.UTC()
	payload := fmt.Sprintf(
		`{"agreed_price":%s,"product_id":%q,"session_id":%q,"timestamp":%q}`,
		strconv.FormatFloat(agreedPrice, 'f', -1, 64),
		productID,
		sessionID,
		at.Format(time.RFC3339Nano),
	)
	digest := sha256.Sum256([]byte(payload))

	return Agreement{
		SessionID:   sessionID,
		ProductID:   productID,
		AgreedPrice: agreedPrice,
		Timestamp:   at,
		Signature:   hex.EncodeToString(digest[:]),
		Algorithm:   "sha256-stub",
	}
}

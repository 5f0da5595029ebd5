package meta

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// SignatureHeader carries the HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Hub-Signature-256"

// Webhook change fields.
const (
	FieldCampaigns = "campaigns"
	FieldAds       = "ads"
	FieldAdsets    = "adsets"
)

// WebhookPayload is a webhook notification body.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry groups the changes for one object.
type WebhookEntry struct {
	ID      string          `json:"id"`
	Time    int64           `json:"time"`
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange is a single changed field.
type WebhookChange struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue identifies the changed object.
type ChangeValue struct {
	CampaignID   string `json:"campaign_id,omitempty"`
	AdsetID      string `json:"adset_id,omitempty"`
	AdID         string `json:"ad_id,omitempty"`
	EventType    string `json:"event_type,omitempty"`
	ObjectType   string `json:"object_type,omitempty"`
	ObjectTypeID string `json:"object_type_id,omitempty"`
}

// VerifySignature checks header (sha256=<hex>) against the HMAC-SHA256 of
// body keyed by secret, in constant time. An empty secret never verifies.
func VerifySignature(secret string, body []byte, header string) bool {
	if secret == "" {
		return false
	}
	hexSig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body) //nolint:errcheck
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the header value Meta would send for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body) //nolint:errcheck
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySubscription handles the hub.mode/hub.verify_token handshake. It
// returns the challenge to echo and true when the token matches.
func VerifySubscription(mode, token, challenge, expected string) (string, bool) {
	if mode != "subscribe" || expected == "" {
		return "", false
	}
	if !hmac.Equal([]byte(token), []byte(expected)) {
		return "", false
	}
	return challenge, true
}

// ParseWebhook decodes a notification body.
func ParseWebhook(body []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, eris.Wrap(err, "meta: decode webhook")
	}
	return &p, nil
}

// ChangesFor returns the entry's changes of the given field that name their
// object.
func (e WebhookEntry) ChangesFor(field string) []ChangeValue {
	var out []ChangeValue
	for _, c := range e.Changes {
		if c.Field != field {
			continue
		}
		switch field {
		case FieldCampaigns:
			if c.Value.CampaignID == "" {
				continue
			}
		case FieldAds:
			if c.Value.AdID == "" {
				continue
			}
		case FieldAdsets:
			if c.Value.AdsetID == "" {
				continue
			}
		}
		out = append(out, c.Value)
	}
	return out
}

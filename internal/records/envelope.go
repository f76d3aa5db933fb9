package records

// Envelope carries the non-sensitive fields shared by every secret record.
// None of these ever pass through the field cipher.
type Envelope struct {
	DocID     string   `json:"doc_id"`
	ProjectID string   `json:"project_id"`
	Title     string   `json:"title"`
	Notes     string   `json:"notes,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
	UpdatedAt string   `json:"updated_at,omitempty"`
	CreatedBy string   `json:"created_by,omitempty"`

	// Kind-specific cleartext passthroughs.
	Brand         string `json:"brand,omitempty"`          // cards
	URL           string `json:"url,omitempty"`            // accounts
	SSID          string `json:"ssid,omitempty"`           // wifi
	SecurityType  string `json:"security_type,omitempty"`  // wifi
	Env           string `json:"env,omitempty"`            // api keys
	WalletType    string `json:"wallet_type,omitempty"`    // wallet phrases
	WalletAddress string `json:"wallet_address,omitempty"` // wallet phrases
	ExpiresAt     string `json:"expires_at,omitempty"`     // licenses
}

// WireRecord is the storage/wire shape shared by both backends: the envelope
// plus the opaque data string. Data either carries the "ivHex.cipherHex"
// encrypted form or legacy plaintext JSON.
type WireRecord struct {
	Envelope
	LowerTitle string `json:"lower_title,omitempty"`
	Data       string `json:"data"`

	// Plaintext marks a record whose payload was stored without encryption
	// because no project key was available. Never serialized; surfaces use
	// it to warn the user.
	Plaintext bool `json:"-"`
}

// Record is a decoded secret: envelope plus the typed sensitive payload.
type Record struct {
	Envelope
	Payload Payload

	// Degraded carries the sentinel applied to the sensitive fields when the
	// payload could not be recovered ("" when the record decoded cleanly).
	Degraded string
}

// Sentinel text substituted into sensitive fields when the payload cannot be
// decrypted. Surfaces render these inline instead of hiding the record.
const (
	SentinelKeyMissing    = "Key missing"
	SentinelDecryptFailed = "Decrypt failed"
)

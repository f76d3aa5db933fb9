package records

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zecrypt/zecrypt-go/internal/fieldcipher"
)

// ToWire serializes the record's sensitive payload to JSON and, when a key
// is available, replaces it with the encrypted field form. With an empty key
// the JSON is stored as-is and the wire record is flagged Plaintext, a
// degraded mode rather than an error. Tags are normalized on the way out.
func ToWire(rec *Record, key string) (*WireRecord, error) {
	if rec.Payload == nil {
		return nil, fmt.Errorf("record %q has no payload", rec.DocID)
	}

	data, err := json.Marshal(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", rec.Payload.Kind(), err)
	}

	w := &WireRecord{
		Envelope:   rec.Envelope,
		LowerTitle: strings.ToLower(rec.Title),
		Data:       string(data),
	}
	w.Tags = NormalizeTags(w.Tags)

	if key == "" {
		w.Plaintext = true
		return w, nil
	}

	enc, err := fieldcipher.Encrypt(string(data), key)
	if err != nil {
		return nil, err
	}
	w.Data = enc
	return w, nil
}

// FromWire decodes a wire record into a typed record. Per-record payload
// failures never surface as errors: the record comes back with sentinel or
// blank sensitive fields and Degraded set, so one bad row cannot sink a
// batch. The envelope is always preserved.
//
// Decision table for the data string:
//   - encrypted form, no key       -> every sensitive field "Key missing"
//   - encrypted form, bad key/data -> every sensitive field "Decrypt failed"
//   - decrypts but JSON won't parse-> every sensitive field "Decrypt failed"
//   - no dot, valid JSON           -> legacy plaintext, parsed directly
//   - no dot, invalid JSON         -> blank sensitive fields
func FromWire(kind Kind, w *WireRecord, key string) (*Record, error) {
	info, ok := Info(kind)
	if !ok {
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}

	rec := &Record{Envelope: w.Envelope, Payload: info.NewPayload()}
	rec.Tags = NormalizeTags(rec.Tags)

	if w.Data == "" {
		return rec, nil
	}

	if fieldcipher.IsEncrypted(w.Data) {
		if key == "" {
			stampSentinel(rec, SentinelKeyMissing)
			return rec, nil
		}
		plain, err := fieldcipher.Decrypt(w.Data, key)
		if err != nil {
			stampSentinel(rec, SentinelDecryptFailed)
			return rec, nil
		}
		if err := json.Unmarshal([]byte(plain), rec.Payload); err != nil {
			stampSentinel(rec, SentinelDecryptFailed)
			return rec, nil
		}
		return rec, nil
	}

	// Legacy plaintext path.
	if err := json.Unmarshal([]byte(w.Data), rec.Payload); err != nil {
		blankPayload(rec.Payload)
		rec.Degraded = "malformed legacy data"
		return rec, nil
	}
	return rec, nil
}

func stampSentinel(rec *Record, sentinel string) {
	for _, f := range rec.Payload.sensitiveFields() {
		*f = sentinel
	}
	rec.Degraded = sentinel
}

func blankPayload(p Payload) {
	for _, f := range p.sensitiveFields() {
		*f = ""
	}
}

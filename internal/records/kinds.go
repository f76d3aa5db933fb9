// Package records defines the eleven secret kinds, their shared envelope,
// and the codec that maps typed records to the storage/wire shape (an opaque
// data string holding encrypted or legacy-plain JSON).
package records

// Kind tags a secret record variant. Routing to per-kind behavior always
// goes through this tag, carried explicitly by the caller; it is never
// inferred from a path string.
type Kind string

const (
	KindAccount      Kind = "account"
	KindCard         Kind = "card"
	KindEmail        Kind = "email"
	KindIdentity     Kind = "identity"
	KindSSHKey       Kind = "ssh_key"
	KindLicense      Kind = "license"
	KindEnv          Kind = "env"
	KindWifi         Kind = "wifi"
	KindAPIKey       Kind = "api_key"
	KindWalletPhrase Kind = "wallet_phrase"
	KindNote         Kind = "note"
)

// KindInfo binds a kind to its remote resource path segment, its embedded
// store table, the id prefix used for locally generated ids, and a payload
// constructor.
type KindInfo struct {
	Kind       Kind
	Resource   string
	Table      string
	IDPrefix   string
	NewPayload func() Payload
}

var kindRegistry = map[Kind]KindInfo{
	KindAccount:      {KindAccount, "accounts", "accounts", "account", func() Payload { return &AccountPayload{} }},
	KindCard:         {KindCard, "cards", "cards", "card", func() Payload { return &CardPayload{} }},
	KindEmail:        {KindEmail, "emails", "emails", "email", func() Payload { return &EmailPayload{} }},
	KindIdentity:     {KindIdentity, "identity", "identities", "identity", func() Payload { return &IdentityPayload{} }},
	KindSSHKey:       {KindSSHKey, "ssh-keys", "ssh_keys", "sshkey", func() Payload { return &SSHKeyPayload{} }},
	KindLicense:      {KindLicense, "licenses", "licenses", "license", func() Payload { return &LicensePayload{} }},
	KindEnv:          {KindEnv, "env", "envs", "env", func() Payload { return &EnvPayload{} }},
	KindWifi:         {KindWifi, "wifi", "wifi_networks", "wifi", func() Payload { return &WifiPayload{} }},
	KindAPIKey:       {KindAPIKey, "api-keys", "api_keys", "apikey", func() Payload { return &APIKeyPayload{} }},
	KindWalletPhrase: {KindWalletPhrase, "wallet-phrases", "wallet_phrases", "wallet", func() Payload { return &WalletPhrasePayload{} }},
	KindNote:         {KindNote, "notes", "notes", "note", func() Payload { return &NotePayload{} }},
}

// Kinds returns every registered kind, in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindAccount, KindCard, KindEmail, KindIdentity, KindSSHKey,
		KindLicense, KindEnv, KindWifi, KindAPIKey, KindWalletPhrase, KindNote,
	}
}

// Info looks up the registry entry for k.
func Info(k Kind) (KindInfo, bool) {
	info, ok := kindRegistry[k]
	return info, ok
}

// KindForResource maps a remote resource path segment back to its kind.
func KindForResource(resource string) (Kind, bool) {
	for k, info := range kindRegistry {
		if info.Resource == resource {
			return k, true
		}
	}
	return "", false
}

// Tables returns every embedded-store table owned by a secret kind.
func Tables() []string {
	tables := make([]string, 0, len(kindRegistry))
	for _, k := range Kinds() {
		tables = append(tables, kindRegistry[k].Table)
	}
	return tables
}

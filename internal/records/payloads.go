package records

import "strings"

// Payload is a kind-specific set of sensitive fields. Only these fields pass
// through the field cipher; everything else lives on the envelope in
// cleartext. sensitiveFields exposes addressable fields so the codec can
// blank them or stamp a sentinel without per-kind switches.
type Payload interface {
	Kind() Kind
	sensitiveFields() []*string
}

// AccountPayload holds login credentials. The site URL is envelope data.
type AccountPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (p *AccountPayload) Kind() Kind { return KindAccount }
func (p *AccountPayload) sensitiveFields() []*string {
	return []*string{&p.Username, &p.Password}
}

// CardPayload holds payment card data. Brand stays on the envelope.
type CardPayload struct {
	CardHolderName string `json:"card_holder_name"`
	Number         string `json:"number"`
	ExpiryMonth    string `json:"expiry_month"`
	ExpiryYear     string `json:"expiry_year"`
	CVV            string `json:"cvv"`
}

func (p *CardPayload) Kind() Kind { return KindCard }
func (p *CardPayload) sensitiveFields() []*string {
	return []*string{&p.CardHolderName, &p.Number, &p.ExpiryMonth, &p.ExpiryYear, &p.CVV}
}

// Last4 derives the display suffix from the decrypted number at read time.
// It is never stored.
func (p *CardPayload) Last4() string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, p.Number)
	if len(digits) < 4 {
		return digits
	}
	return digits[len(digits)-4:]
}

// EmailPayload holds a mail account with its server settings.
type EmailPayload struct {
	EmailAddress string `json:"email_address"`
	IMAPServer   string `json:"imap_server"`
	SMTPServer   string `json:"smtp_server"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

func (p *EmailPayload) Kind() Kind { return KindEmail }
func (p *EmailPayload) sensitiveFields() []*string {
	return []*string{&p.EmailAddress, &p.IMAPServer, &p.SMTPServer, &p.Username, &p.Password}
}

// IdentityPayload holds personal identity details.
type IdentityPayload struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	Country     string `json:"country"`
	DateOfBirth string `json:"date_of_birth"`
	NationalID  string `json:"national_id"`
}

func (p *IdentityPayload) Kind() Kind { return KindIdentity }
func (p *IdentityPayload) sensitiveFields() []*string {
	return []*string{
		&p.FirstName, &p.LastName, &p.Email, &p.Phone,
		&p.Address, &p.Country, &p.DateOfBirth, &p.NationalID,
	}
}

// SSHKeyPayload holds the private key material.
type SSHKeyPayload struct {
	SSHKey string `json:"ssh_key"`
}

func (p *SSHKeyPayload) Kind() Kind                 { return KindSSHKey }
func (p *SSHKeyPayload) sensitiveFields() []*string { return []*string{&p.SSHKey} }

// LicensePayload holds a license key. The expiry date is envelope data.
type LicensePayload struct {
	LicenseKey string `json:"license_key"`
}

func (p *LicensePayload) Kind() Kind                 { return KindLicense }
func (p *LicensePayload) sensitiveFields() []*string { return []*string{&p.LicenseKey} }

// EnvPayload holds an environment-variable bundle as raw dotenv text.
type EnvPayload struct {
	Variables string `json:"variables"`
}

func (p *EnvPayload) Kind() Kind                 { return KindEnv }
func (p *EnvPayload) sensitiveFields() []*string { return []*string{&p.Variables} }

// WifiPayload holds the network passphrase only; SSID and security type stay
// on the envelope in cleartext.
type WifiPayload struct {
	Password string `json:"password"`
}

func (p *WifiPayload) Kind() Kind                 { return KindWifi }
func (p *WifiPayload) sensitiveFields() []*string { return []*string{&p.Password} }

// APIKeyPayload holds the key value; the target environment tag is envelope
// data.
type APIKeyPayload struct {
	Key string `json:"key"`
}

func (p *APIKeyPayload) Kind() Kind                 { return KindAPIKey }
func (p *APIKeyPayload) sensitiveFields() []*string { return []*string{&p.Key} }

// WalletPhrasePayload holds a wallet recovery passphrase. Wallet type and
// address are envelope data.
type WalletPhrasePayload struct {
	Passphrase string `json:"passphrase"`
}

func (p *WalletPhrasePayload) Kind() Kind                 { return KindWalletPhrase }
func (p *WalletPhrasePayload) sensitiveFields() []*string { return []*string{&p.Passphrase} }

// NotePayload holds free-form secure note text.
type NotePayload struct {
	Text string `json:"text"`
}

func (p *NotePayload) Kind() Kind                 { return KindNote }
func (p *NotePayload) sensitiveFields() []*string { return []*string{&p.Text} }

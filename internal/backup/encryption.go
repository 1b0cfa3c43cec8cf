package backup

import (
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// EncryptedSuffix is appended to every artifact written through an Encryption.
const EncryptedSuffix = ".encrypted"

// Encryption wraps artifact streams with age. A nil *Encryption writes
// plaintext.
type Encryption struct {
	recipients []age.Recipient
}

// NewPassphraseEncryption encrypts to a scrypt passphrase recipient.
func NewPassphraseEncryption(passphrase string) (*Encryption, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("encryption passphrase is empty")
	}
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to create passphrase recipient: %w", err)
	}
	return &Encryption{recipients: []age.Recipient{recipient}}, nil
}

// NewRecipientEncryption encrypts to one or more X25519 recipients
// ("age1...").
func NewRecipientEncryption(values []string) (*Encryption, error) {
	var recipients []age.Recipient
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if !strings.HasPrefix(value, "age1") {
			return nil, fmt.Errorf("unsupported age recipient: %s", value)
		}
		recipient, err := age.ParseX25519Recipient(value)
		if err != nil {
			return nil, fmt.Errorf("invalid age recipient %s: %w", value, err)
		}
		recipients = append(recipients, recipient)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no age recipients given")
	}
	return &Encryption{recipients: recipients}, nil
}

// Name returns the artifact file name for base.
func (e *Encryption) Name(base string) string {
	if e == nil {
		return base
	}
	return base + EncryptedSuffix
}

// Wrap returns a writer that encrypts into w. Close must be called to flush
// the final chunk; it does not close w.
func (e *Encryption) Wrap(w io.Writer) (io.WriteCloser, error) {
	if e == nil {
		return nopCloser{w}, nil
	}
	enc, err := age.Encrypt(w, e.recipients...)
	if err != nil {
		return nil, fmt.Errorf("failed to start encryption: %w", err)
	}
	return enc, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

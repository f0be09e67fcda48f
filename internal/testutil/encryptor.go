package testutil

import "richpres/internal/encryption"

// NewTestEncryptor returns a deterministic encryptor whose output can be
// opened with any passphrase.
func NewTestEncryptor() *encryption.TestEncryptor {
	return encryption.NewTestEncryptor()
}

package encryption

import "io"

// Encryptor seals archived wire traces. Sealing needs only the public key;
// reading traces back requires unlocking the private key with a passphrase.
type Encryptor interface {
	// Setup generates the key pair, called from `richpres config init`.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key. A wrong passphrase is an error.
	Unlock(passphrase string) (Decrypter, error)

	// IsConfigured reports whether both key files exist.
	IsConfigured() bool
}

// Decrypter holds an unlocked private key in memory for one CLI invocation.
type Decrypter interface {
	Decrypt(r io.Reader, w io.Writer) error
}

package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// testHeader marks traces sealed by TestEncryptor.
var testHeader = []byte("RPTRACE\x00")

// TestEncryptor is a deterministic stand-in for AgeEncryptor. It prepends a
// fixed header on Encrypt and strips it on Decrypt. Unlock accepts only the
// passphrase given to Setup, or any passphrase when Setup was never called.
type TestEncryptor struct {
	passphrase string
	setup      bool
}

var _ Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a new TestEncryptor.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.passphrase = passphrase
	e.setup = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (Decrypter, error) {
	if e.setup && passphrase != e.passphrase {
		return nil, errors.New("incorrect passphrase")
	}
	return TestDecrypter{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecrypter strips the header added by TestEncryptor.
type TestDecrypter struct{}

var _ Decrypter = TestDecrypter{}

func (TestDecrypter) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return errors.New("invalid test encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

package envelope

import (
	"fmt"

	"github.com/dmitrijs2005/sealvault/internal/common"
	"golang.org/x/crypto/curve25519"
)

// checkScalar is any non-zero scalar; multiplying a low-order point by it yields zero.
var checkScalar = [32]byte{9, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
	16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31}

// ValidateBoxPublicKey checks that s is a base64 X25519 public key that is not a low-order point.
func ValidateBoxPublicKey(s string) error {
	k, err := decodePublicKey(s)
	if err != nil {
		return err
	}
	if _, err := curve25519.X25519(checkScalar[:], k[:]); err != nil {
		return fmt.Errorf("%w: low-order x25519 key", common.ErrorCrypto)
	}
	return nil
}

// ValidateSigningPublicKey checks that s is a base64 Ed25519 public key.
func ValidateSigningPublicKey(s string) error {
	_, err := decodePublicKey(s)
	return err
}

// ValidateSealedKey checks that s decodes to a sealed box holding exactly one key.
func ValidateSealedKey(s string) error {
	return checkLen(s, SealedKeySize, "sealed key")
}

// ValidateFolderWrap checks a DEK encrypted under a folder key and its nonce.
func ValidateFolderWrap(wrapped, nonce string) error {
	if err := checkLen(wrapped, FolderWrappedSize, "folder-wrapped key"); err != nil {
		return err
	}
	return checkLen(nonce, FolderNonceSize, "wrapping nonce")
}

func checkLen(s string, want int, what string) error {
	raw, err := Encoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%w: %s is not base64", common.ErrorCrypto, what)
	}
	if len(raw) != want {
		return fmt.Errorf("%w: %s must be %d bytes, got %d", common.ErrorCrypto, what, want, len(raw))
	}
	return nil
}

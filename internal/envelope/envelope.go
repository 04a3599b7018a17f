// Package envelope describes the key-wrapping formats exchanged between
// clients and the vault.
//
// Two halves live here. The client half (GenerateKey, NewIdentity, Seal,
// Unseal, Reseal, WrapWithFolderKey, UnwrapWithFolderKey, EncryptContent,
// DecryptContent) is what a device runs: DEKs and folder keys are sealed to
// X25519 public keys with NaCl anonymous sealed boxes, and DEKs placed in a
// folder are encrypted under the folder key with XChaCha20-Poly1305. The
// server half (Validate*) only checks the shape of what clients upload. The
// server never calls Unseal and never holds a private key.
//
// All binary values travel as standard base64.
package envelope

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/dmitrijs2005/sealvault/internal/common"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/nacl/box"
)

const (
	// KeySize is the length of a DEK or folder key.
	KeySize = 32
	// PublicKeySize is the length of X25519 and Ed25519 public keys.
	PublicKeySize = 32
	// SealedKeySize is the decoded length of a key sealed to a public key.
	SealedKeySize = KeySize + box.AnonymousOverhead
	// FolderNonceSize is the XChaCha20-Poly1305 nonce length.
	FolderNonceSize = chacha20poly1305.NonceSizeX
	// FolderWrappedSize is the decoded length of a DEK encrypted under a folder key.
	FolderWrappedSize = KeySize + chacha20poly1305.Overhead
)

// Encoding is the wire encoding for every key-related value.
var Encoding = base64.StdEncoding

// Identity is a device-held key pair set. Only PublicKeys ever leave the device.
type Identity struct {
	BoxPublic   *[32]byte
	BoxPrivate  *[32]byte
	SignPublic  ed25519.PublicKey
	SignPrivate ed25519.PrivateKey
}

// PublicKeys is the registrable half of an Identity.
type PublicKeys struct {
	X25519  string `json:"x25519_public_key"`
	Ed25519 string `json:"ed25519_public_key"`
}

// NewIdentity generates fresh X25519 and Ed25519 key pairs.
func NewIdentity() (*Identity, error) {
	bp, bs, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	sp, ss, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Identity{BoxPublic: bp, BoxPrivate: bs, SignPublic: sp, SignPrivate: ss}, nil
}

func (id *Identity) PublicKeys() PublicKeys {
	return PublicKeys{
		X25519:  Encoding.EncodeToString(id.BoxPublic[:]),
		Ed25519: Encoding.EncodeToString(id.SignPublic),
	}
}

// GenerateKey returns a random DEK or folder key.
func GenerateKey() ([]byte, error) {
	k := make([]byte, KeySize)
	if _, err := rand.Read(k); err != nil {
		return nil, err
	}
	return k, nil
}

// Seal encrypts plaintext to the base64 X25519 recipient key.
func Seal(plaintext []byte, recipientPublicKey string) (string, error) {
	pub, err := decodePublicKey(recipientPublicKey)
	if err != nil {
		return "", err
	}
	sealed, err := box.SealAnonymous(nil, plaintext, pub, rand.Reader)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrorCrypto, err)
	}
	return Encoding.EncodeToString(sealed), nil
}

// Unseal opens a sealed blob with the identity's private key.
func (id *Identity) Unseal(sealed string) ([]byte, error) {
	raw, err := Encoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: sealed blob is not base64", common.ErrorCrypto)
	}
	out, ok := box.OpenAnonymous(nil, raw, id.BoxPublic, id.BoxPrivate)
	if !ok {
		return nil, fmt.Errorf("%w: cannot open sealed blob", common.ErrorCrypto)
	}
	return out, nil
}

// Reseal unseals a key the identity holds and seals it again for recipient.
// This is the client-side half of sharing.
func (id *Identity) Reseal(sealed, recipientPublicKey string) (string, error) {
	key, err := id.Unseal(sealed)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(key)
	return Seal(key, recipientPublicKey)
}

// WrapWithFolderKey encrypts dek under folderKey and returns the ciphertext and nonce.
func WrapWithFolderKey(dek, folderKey []byte) (wrapped, nonce string, err error) {
	aead, err := chacha20poly1305.NewX(folderKey)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", common.ErrorCrypto, err)
	}
	n := make([]byte, FolderNonceSize)
	if _, err := rand.Read(n); err != nil {
		return "", "", err
	}
	ct := aead.Seal(nil, n, dek, nil)
	return Encoding.EncodeToString(ct), Encoding.EncodeToString(n), nil
}

// UnwrapWithFolderKey reverses WrapWithFolderKey.
func UnwrapWithFolderKey(wrapped, nonce string, folderKey []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(folderKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorCrypto, err)
	}
	ct, err := Encoding.DecodeString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: wrapped key is not base64", common.ErrorCrypto)
	}
	n, err := Encoding.DecodeString(nonce)
	if err != nil || len(n) != FolderNonceSize {
		return nil, fmt.Errorf("%w: bad nonce", common.ErrorCrypto)
	}
	dek, err := aead.Open(nil, n, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open wrapped key", common.ErrorCrypto)
	}
	return dek, nil
}

// EncryptContent encrypts file bytes under dek. The output is the
// XChaCha20-Poly1305 nonce followed by the ciphertext; it is what gets stored
// as the blob.
func EncryptContent(plaintext, dek []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(dek)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorCrypto, err)
	}
	out := make([]byte, FolderNonceSize, FolderNonceSize+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, err
	}
	return aead.Seal(out, out[:FolderNonceSize], plaintext, nil), nil
}

// DecryptContent reverses EncryptContent.
func DecryptContent(blob, dek []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(dek)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorCrypto, err)
	}
	if len(blob) < FolderNonceSize+aead.Overhead() {
		return nil, fmt.Errorf("%w: blob too short", common.ErrorCrypto)
	}
	pt, err := aead.Open(nil, blob[:FolderNonceSize], blob[FolderNonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decrypt blob", common.ErrorCrypto)
	}
	return pt, nil
}

func decodePublicKey(s string) (*[32]byte, error) {
	raw, err := Encoding.DecodeString(s)
	if err != nil || len(raw) != PublicKeySize {
		return nil, fmt.Errorf("%w: public key must be %d base64 bytes", common.ErrorCrypto, PublicKeySize)
	}
	var k [32]byte
	copy(k[:], raw)
	return &k, nil
}

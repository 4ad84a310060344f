package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

type CredentialID [16]byte

const (
	credentialTokenRawSize = 48
	credentialSecretSize   = 32
)

func NewCredentialID() (CredentialID, error) {
	var cid CredentialID
	_, err := rand.Read(cid[:])
	return cid, err
}

func (c CredentialID) Bytes() []byte {
	return c[:]
}

func (c CredentialID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(c[:])
}

func ParseCredentialID(credentialID string) (CredentialID, error) {
	var cid CredentialID

	raw, err := base64.RawURLEncoding.DecodeString(credentialID)
	if err != nil {
		return cid, err
	}
	if len(raw) != len(cid) {
		return cid, errors.New("invalid credential id size")
	}

	copy(cid[:], raw)
	return cid, nil
}

func NewCredentialSecret() ([credentialSecretSize]byte, error) {
	var secret [credentialSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func HashCredentialSecret(secret [credentialSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

func HashCredentialBytes(secret []byte) [32]byte {
	return sha256.Sum256(secret)
}

// EncodeCredentialToken packs id||secret as one opaque base64url string.
// The raw form never touches storage; only the SHA-256 of the secret does.
func EncodeCredentialToken(credentialID string, secret [credentialSecretSize]byte) (string, error) {
	cid, err := ParseCredentialID(credentialID)
	if err != nil {
		return "", err
	}

	var raw [credentialTokenRawSize]byte
	copy(raw[:len(cid)], cid[:])
	copy(raw[len(cid):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

func DecodeCredentialToken(token string) (string, [credentialSecretSize]byte, error) {
	var secret [credentialSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, err
	}
	if len(raw) != credentialTokenRawSize {
		return "", secret, errors.New("invalid credential token size")
	}

	var cid CredentialID
	copy(cid[:], raw[:len(cid)])
	copy(secret[:], raw[len(cid):])

	return cid.String(), secret, nil
}

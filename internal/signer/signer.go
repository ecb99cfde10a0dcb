package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// ErrSigningFailed wraps every failure to obtain a sender signature.
var ErrSigningFailed = errors.New("signing failed")

// Authenticator is the sender's proof over a signing message.
type Authenticator struct {
	PublicKey []byte
	Signature []byte
}

// Bytes returns the RLP encoding the relay expects.
func (a Authenticator) Bytes() ([]byte, error) {
	return rlp.EncodeToBytes(a)
}

// DecodeAuthenticator parses an RLP encoded authenticator.
func DecodeAuthenticator(data []byte) (Authenticator, error) {
	var a Authenticator
	err := rlp.DecodeBytes(data, &a)
	return a, err
}

// Verify reports whether a was produced over message by its public key.
func Verify(a Authenticator, message []byte) bool {
	if len(a.Signature) != crypto.SignatureLength {
		return false
	}
	return crypto.VerifySignature(a.PublicKey, crypto.Keccak256(message), a.Signature[:crypto.RecoveryIDOffset])
}

// LocalSigner signs with an in-process secp256k1 key.
type LocalSigner struct {
	key *ecdsa.PrivateKey
}

func NewLocalSigner(key *ecdsa.PrivateKey) (*LocalSigner, error) {
	if key == nil {
		return nil, fmt.Errorf("signer: private key required")
	}
	return &LocalSigner{key: key}, nil
}

// LocalSignerFromHex parses a hex private key with or without 0x prefix.
func LocalSignerFromHex(hexKey string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("signer: parse private key: %w", err)
	}
	return NewLocalSigner(key)
}

// PublicKey returns the uncompressed public key.
func (s *LocalSigner) PublicKey() []byte {
	return crypto.FromECDSAPub(&s.key.PublicKey)
}

// Sign signs keccak256(message).
func (s *LocalSigner) Sign(_ context.Context, message []byte) (Authenticator, error) {
	if len(message) == 0 {
		return Authenticator{}, fmt.Errorf("%w: empty message", ErrSigningFailed)
	}
	sig, err := crypto.Sign(crypto.Keccak256(message), s.key)
	if err != nil {
		return Authenticator{}, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	return Authenticator{PublicKey: s.PublicKey(), Signature: sig}, nil
}

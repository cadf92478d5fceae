// Package sigverify implements the signature verifier (SV) of spec.md §4.1:
// Substrate (SS58/sr25519) verification for voters and EVM (personal_sign)
// verification for miners.
package sigverify

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vedhavyas/go-subkey/v2"
	"github.com/vedhavyas/go-subkey/v2/sr25519"
)

// ErrInvalidSignature is returned for any recovery failure, malformed
// input, or address mismatch; callers map it to apierr.AuthError.
var ErrInvalidSignature = errors.New("invalid signature")

// ss58Prefix is the network prefix voters' addresses are encoded with.
const ss58Prefix = 42

// rawMarker is the two leading bytes that flag a "raw bytes" signature
// framing rather than the plain string framing.
const rawMarker = "0101"

// VerifySubstrate checks a voter's sr25519 signature over msg, accepting
// both the plain string framing and the raw-bytes-prefixed framing used by
// some wallet extensions, per spec.md §4.1.
func VerifySubstrate(msg, sig, addr string) error {
	sigHex := strings.TrimPrefix(sig, "0x")

	var payload []byte
	var signed []byte
	if strings.HasPrefix(sigHex, rawMarker) {
		sigHex = sigHex[4:]
		raw, err := hex.DecodeString(sigHex)
		if err != nil {
			return ErrInvalidSignature
		}
		if len(raw) != 64 {
			return ErrInvalidSignature
		}
		payload = raw
		signed = []byte(msg)
	} else {
		raw, err := hex.DecodeString(sigHex)
		if err != nil {
			return ErrInvalidSignature
		}
		if len(raw) != 64 {
			return ErrInvalidSignature
		}
		payload = raw
		signed = []byte(msg)
	}

	pubKey, _, err := subkey.SS58Decode(addr)
	if err != nil {
		return ErrInvalidSignature
	}

	scheme := sr25519.Scheme{}
	if !scheme.Verify(pubKey, signed, payload) {
		return ErrInvalidSignature
	}

	reencoded, err := subkey.SS58Encode(pubKey, ss58Prefix)
	if err != nil {
		return ErrInvalidSignature
	}
	if reencoded != addr {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyEVM checks a miner's personal_sign signature over msg, comparing
// the recovered address case-insensitively with addr, per spec.md §4.1.
func VerifyEVM(msg, sig, addr string) error {
	sigBytes, err := hexToBytes(sig)
	if err != nil {
		return ErrInvalidSignature
	}
	if len(sigBytes) != 65 {
		return ErrInvalidSignature
	}
	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}
	if sigBytes[64] != 0 && sigBytes[64] != 1 {
		return ErrInvalidSignature
	}

	hash := accounts.TextHash([]byte(msg))
	pubKey, err := crypto.SigToPub(hash, sigBytes)
	if err != nil {
		return ErrInvalidSignature
	}
	recovered := crypto.PubkeyToAddress(*pubKey)

	if !common.IsHexAddress(addr) {
		return ErrInvalidSignature
	}
	if !strings.EqualFold(recovered.Hex(), common.HexToAddress(addr).Hex()) {
		return ErrInvalidSignature
	}
	return nil
}

func hexToBytes(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

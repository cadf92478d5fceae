package sigverify

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestVerifyEVMValidSignature(t *testing.T) {
	key, err := crypto.HexToECDSA("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	msg := "0x...pools...|12345"
	hash := accounts.TextHash([]byte(msg))
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[64] += 27

	if err := VerifyEVM(msg, "0x"+hexEncode(sig), addr.Hex()); err != nil {
		t.Fatalf("expected valid signature to verify, got %v", err)
	}
}

func TestVerifyEVMWrongMessageFails(t *testing.T) {
	key, err := crypto.HexToECDSA("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	hash := accounts.TextHash([]byte("original message"))
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[64] += 27

	err = VerifyEVM("tampered message", "0x"+hexEncode(sig), addr.Hex())
	if err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature for tampered message, got %v", err)
	}
}

func TestVerifyEVMMalformedSignature(t *testing.T) {
	cases := []string{"", "0x", "0xnothex", "0x1234"}
	for _, sig := range cases {
		if err := VerifyEVM("msg", sig, "0x0000000000000000000000000000000000000001"); err != ErrInvalidSignature {
			t.Fatalf("sig %q: expected ErrInvalidSignature, got %v", sig, err)
		}
	}
}

func TestVerifyEVMInvalidAddress(t *testing.T) {
	key, _ := crypto.HexToECDSA("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	hash := accounts.TextHash([]byte("msg"))
	sig, _ := crypto.Sign(hash, key)
	sig[64] += 27

	if err := VerifyEVM("msg", "0x"+hexEncode(sig), "not-an-address"); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature for malformed address, got %v", err)
	}
}

func TestVerifySubstrateMalformedHex(t *testing.T) {
	if err := VerifySubstrate("msg", "zz", "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature for non-hex signature, got %v", err)
	}
}

func TestVerifySubstrateWrongLength(t *testing.T) {
	short := strings.Repeat("ab", 10)
	if err := VerifySubstrate("msg", short, "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature for wrong-length signature, got %v", err)
	}
}

func TestVerifySubstrateRawMarkerWrongLength(t *testing.T) {
	sig := "0101" + strings.Repeat("ab", 10)
	if err := VerifySubstrate("msg", sig, "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature for wrong-length raw-marker signature, got %v", err)
	}
}

func TestVerifySubstrateBadAddress(t *testing.T) {
	sig := strings.Repeat("ab", 64)
	if err := VerifySubstrate("msg", sig, "not-a-valid-ss58-address"); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature for malformed address, got %v", err)
	}
}

func hexEncode(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out)
}

package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrBadSignature   = errors.New("malformed signature")
	ErrSignerMismatch = errors.New("signature does not match address")
	ErrInvalidAddress = errors.New("invalid address")
)

// LoginMessage is the text the wallet signs with personal_sign.
func LoginMessage(domain string, address common.Address, nonce string) string {
	return fmt.Sprintf("%s wants you to sign in with your Ethereum account:\n%s\n\nNonce: %s", domain, address.Hex(), nonce)
}

// ParseAddress accepts a 0x-prefixed hex address in any letter case.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	hasPrefix := strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")
	if !hasPrefix || !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero address", ErrInvalidAddress)
	}
	return addr, nil
}

// VerifyPersonalSign checks an EIP-191 signature (65 bytes, hex, v in
// {0,1,27,28}) over message and reports whether it was made by address.
func VerifyPersonalSign(address common.Address, message, signature string) error {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return ErrBadSignature
	}
	sig = append([]byte(nil), sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return ErrBadSignature
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if crypto.PubkeyToAddress(*pub) != address {
		return ErrSignerMismatch
	}
	return nil
}

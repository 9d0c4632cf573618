package settlement

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	pkgerrors "github.com/msourial/platefull/pkg/errors"
)

// ValidateWalletAddress accepts 0x-prefixed 20-byte hex addresses. Mixed-case
// input must carry a valid EIP-55 checksum; all-lower or all-upper is accepted.
func ValidateWalletAddress(addr string) error {
	addr = strings.TrimSpace(addr)
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet address must be 0x followed by 40 hex characters")
	}
	body := addr[2:]
	if _, err := hex.DecodeString(body); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet address must be 0x followed by 40 hex characters")
	}
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return nil
	}
	if ChecksumAddress(addr) != addr {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet address checksum mismatch")
	}
	return nil
}

// ChecksumAddress returns the EIP-55 mixed-case form of a hex address.
func ChecksumAddress(addr string) string {
	lower := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(addr), "0x"))
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(lower))
	digest := hex.EncodeToString(h.Sum(nil))

	out := []byte(lower)
	for i, c := range out {
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			out[i] = c - 32
		}
	}
	return "0x" + string(out)
}

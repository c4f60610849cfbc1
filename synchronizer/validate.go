package synchronizer

import (
	"crypto/sha256"
	"strings"

	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/txscript/v4/stdaddr"
)

// DeriveScriptHash computes the server-side subscription key for addr: the
// scripthash of its output script, byte-reversed the way Electrum-style
// indexing servers expect it (most-significant byte first becomes
// least-significant byte first, matching how txids are conventionally
// displayed reversed from their wire order).
func DeriveScriptHash(addr string, params stdaddr.AddressParams) (ScriptHash, error) {
	decoded, err := stdaddr.DecodeAddress(addr, params)
	if err != nil {
		return ScriptHash{}, NewInvalidInputError("invalid address %q: %v", addr, err)
	}

	_, script := decoded.PaymentScript()
	digest := sha256.Sum256(script)

	var sh ScriptHash
	for i, b := range digest {
		sh[len(digest)-1-i] = b
	}
	return sh, nil
}

// DefaultAddressValidator builds an AddressValidator bound to a specific
// network, using the same address decoder DeriveScriptHash relies on so
// that anything accepted by Add is guaranteed to also be derivable into a
// scripthash.
func DefaultAddressValidator(params *chaincfg.Params) AddressValidator {
	return func(addr string) bool {
		_, err := stdaddr.DecodeAddress(addr, params)
		return err == nil
	}
}

// DefaultAssetNameValidator implements the leading-character convention
// from spec §6: names beginning with '$' are restricted assets, '#' are
// qualifiers, anything else is a regular asset name. It requires a
// non-empty name of at most maxLen bytes and, after an optional '$' or '#'
// prefix, a non-empty body made only of uppercase letters A-Z, digits,
// '_' and '.'; a wallet may layer stricter network-specific rules on top by
// supplying its own AssetNameValidator.
func DefaultAssetNameValidator(maxLen int) AssetNameValidator {
	return func(name string) string {
		if name == "" {
			return "asset name is empty"
		}
		if len(name) > maxLen {
			return "asset name exceeds maximum length"
		}
		body := name
		switch name[0] {
		case '$', '#':
			body = name[1:]
		}
		if body == "" {
			return "asset name has no body after its prefix"
		}
		if strings.ToUpper(body) != body {
			return "asset name must be uppercase"
		}
		for _, r := range body {
			isLetter := r >= 'A' && r <= 'Z'
			isDigit := r >= '0' && r <= '9'
			isPunct := r == '_' || r == '.'
			if !isLetter && !isDigit && !isPunct {
				return "asset name contains an invalid character"
			}
		}
		return ""
	}
}

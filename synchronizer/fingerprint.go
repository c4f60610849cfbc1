package synchronizer

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// historyStatus computes the position- and format-sensitive fingerprint of
// an address's history. Implementations elsewhere in the ecosystem that
// must interoperate with this one need to match this byte-for-byte: the
// digest is over the ASCII string built by concatenating, for every entry
// in the order given, "<tx_hash_hex>:<decimal_height>:".
//
// An empty history fingerprints to StatusNone, regardless of what the
// server may have announced.
func historyStatus(h []HistoryEntry) Status {
	if len(h) == 0 {
		return StatusNone
	}

	var b strings.Builder
	for _, entry := range h {
		b.WriteString(entry.TxHash.String())
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(int64(entry.Height), 10))
		b.WriteByte(':')
	}
	return Status(sha256Hex(b.String()))
}

// assetStatus computes the fingerprint of an asset's metadata. Absent
// metadata fingerprints to StatusNone. The digest is over the ASCII string
// built from, in order: decimal sats_in_circulation, decimal divisions, the
// literal "True"/"False" for reissuable, the literal "True"/"False" for
// has_ipfs, and — only when has_ipfs is true — the raw IPFS identifier
// bytes appended as characters.
func assetStatus(m *AssetMetadata) Status {
	if m == nil {
		return StatusNone
	}

	var b strings.Builder
	b.WriteString(strconv.FormatUint(m.SatsInCirculation, 10))
	b.WriteString(strconv.FormatUint(uint64(m.Divisions), 10))
	b.WriteString(pythonBool(m.Reissuable))
	hasIPFS := m.HasIPFS()
	b.WriteString(pythonBool(hasIPFS))
	if hasIPFS {
		b.Write(m.IPFSHash)
	}
	return Status(sha256Hex(b.String()))
}

// pythonBool renders a bool the way the original implementation's str(bool)
// would: "True" or "False". The fingerprint is bit-exact with that format,
// not Go's "true"/"false".
func pythonBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

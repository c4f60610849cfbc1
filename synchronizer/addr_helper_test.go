package synchronizer

import (
	"bytes"
	"testing"

	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/txscript/v4/stdaddr"
	"github.com/stretchr/testify/require"
)

// testParams is the network every test derives addresses against.
func testParams() *chaincfg.Params {
	return chaincfg.SimNetParams()
}

// testAddress deterministically derives a valid P2PKH address from seed, so
// tests exercise the real DeriveScriptHash/stdaddr decode path without
// depending on a hand-typed, easily-stale checksummed address literal.
func testAddress(t *testing.T, seed byte) string {
	t.Helper()
	hash := bytes.Repeat([]byte{seed}, 20)
	addr, err := stdaddr.NewAddressPubKeyHashEcdsaSecp256k1V0(hash, testParams())
	require.NoError(t, err)
	return addr.String()
}

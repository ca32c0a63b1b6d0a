package types

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChain(t *testing.T) {
	tests := []struct {
		input string
		want  ChainID
		ok    bool
	}{
		{"", ChainEthereum, true},
		{"ETH", ChainEthereum, true},
		{"polygon", ChainPolygon, true},
		{"bsc", ChainBNB, true},
		{"solana", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseChain(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChainSpecsUseOwnNativeSymbol(t *testing.T) {
	want := map[ChainID]string{ChainEthereum: "ETH", ChainPolygon: "MATIC", ChainBNB: "BNB"}
	for _, chain := range SupportedChains() {
		spec, ok := LookupChain(chain)
		require.True(t, ok, chain)
		assert.Equal(t, want[chain], spec.NativeSymbol)
		assert.NotEmpty(t, spec.EtherscanChainID)
		assert.NotEmpty(t, spec.MoralisChain)
	}
}

func TestAddressHelpers(t *testing.T) {
	addr := "0xAbC0000000000000000000000000000000000001"
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", NormalizeAddress("  "+addr))
	assert.True(t, IsValidAddress(addr))
	assert.False(t, IsValidAddress("0x1234"))
	assert.True(t, SameAddress(addr, "0xabc0000000000000000000000000000000000001"))
	assert.False(t, SameAddress("", ""))
}

func TestScaleAmount(t *testing.T) {
	d, err := ScaleAmount("1500000", 6)
	require.NoError(t, err)
	assert.Equal(t, "1.5", d.String())

	d, err = ScaleAmount("", 18)
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = ScaleAmount("abc", 18)
	assert.Error(t, err)
}

func TestTransactionGasCost(t *testing.T) {
	tx := Transaction{Hash: "0x1", GasUsed: "21000", GasPrice: "1000000000"}
	wei, err := tx.GasCostWei()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(21000*1000000000), wei)
	assert.Equal(t, "0.000021", WeiToNative(wei, 18).String())

	_, err = Transaction{GasUsed: "x", GasPrice: "1"}.GasCostWei()
	assert.Error(t, err)
}

func TestFigure(t *testing.T) {
	assert.False(t, Computed(3).Degraded())
	f := Unavailable(errors.New("boom"))
	assert.True(t, f.Degraded())
	assert.Equal(t, 0.0, f.Value)
	assert.Equal(t, "boom", f.Reason)
}

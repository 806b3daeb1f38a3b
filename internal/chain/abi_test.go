package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuyCallCarriesFullOfferTuple(t *testing.T) {
	method, ok := vaultABI.Methods["buyMaxMiningTokenFromOffer"]
	require.True(t, ok)
	require.Len(t, method.Inputs, 5, "the vault checks the tuple against live offer state")

	data, err := vaultABI.Pack("buyMaxMiningTokenFromOffer",
		big.NewInt(7),
		common.HexToAddress("0x0000000000000000000000000000000000000a01"),
		common.HexToAddress("0x0000000000000000000000000000000000000a02"),
		big.NewInt(55_000_000),
		big.NewInt(10e9),
	)
	require.NoError(t, err)
	assert.Len(t, data, 4+5*32)
}

package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract ABIs, restricted to the fragments the engine actually calls.
var (
	marketplaceABI abi.ABI
	erc20ABI       abi.ABI
	vaultABI       abi.ABI
)

func init() {
	var err error

	marketplaceABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "getOfferCount",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "getInitialOffer",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "offerId", "type": "uint256"}],
			"outputs": [
				{"name": "offerToken", "type": "address"},
				{"name": "buyerToken", "type": "address"},
				{"name": "seller", "type": "address"},
				{"name": "buyer", "type": "address"},
				{"name": "price", "type": "uint256"},
				{"name": "amount", "type": "uint256"}
			]
		},
		{
			"name": "showOffer",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "offerId", "type": "uint256"}],
			"outputs": [
				{"name": "offerToken", "type": "address"},
				{"name": "buyerToken", "type": "address"},
				{"name": "seller", "type": "address"},
				{"name": "buyer", "type": "address"},
				{"name": "price", "type": "uint256"},
				{"name": "amount", "type": "uint256"}
			]
		},
		{
			"name": "OfferCreated",
			"type": "event",
			"inputs": [
				{"name": "offerToken", "type": "address", "indexed": true},
				{"name": "buyerToken", "type": "address", "indexed": true},
				{"name": "seller", "type": "address", "indexed": false},
				{"name": "buyer", "type": "address", "indexed": false},
				{"name": "offerId", "type": "uint256", "indexed": true},
				{"name": "price", "type": "uint256", "indexed": false},
				{"name": "amount", "type": "uint256", "indexed": false}
			]
		},
		{
			"name": "OfferUpdated",
			"type": "event",
			"inputs": [
				{"name": "offerId", "type": "uint256", "indexed": true},
				{"name": "oldPrice", "type": "uint256", "indexed": false},
				{"name": "newPrice", "type": "uint256", "indexed": true},
				{"name": "oldAmount", "type": "uint256", "indexed": false},
				{"name": "newAmount", "type": "uint256", "indexed": true}
			]
		}
	]`))
	if err != nil {
		panic("chain: marketplace abi parse: " + err.Error())
	}

	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "symbol",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "string"}]
		},
		{
			"name": "decimals",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint8"}]
		},
		{
			"name": "totalSupply",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "balanceOf",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "owner", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "allowance",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "approve",
			"type": "function",
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		}
	]`))
	if err != nil {
		panic("chain: erc20 abi parse: " + err.Error())
	}

	vaultABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "name",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "string"}]
		},
		{
			"name": "asset",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "address"}]
		},
		{
			"name": "paused",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "bool"}]
		},
		{
			"name": "tvl",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "totalAssets",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "holdingsAddresses",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "address[]"}]
		},
		{
			"name": "tokenAverageBuyingPrice",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "token", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "deposit",
			"type": "function",
			"inputs": [
				{"name": "assets", "type": "uint256"},
				{"name": "receiver", "type": "address"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "buyMaxMiningTokenFromOffer",
			"type": "function",
			"inputs": [
				{"name": "offerId", "type": "uint256"},
				{"name": "offerToken", "type": "address"},
				{"name": "buyerToken", "type": "address"},
				{"name": "price", "type": "uint256"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": []
		},
		{
			"name": "Paused",
			"type": "event",
			"inputs": [{"name": "account", "type": "address", "indexed": false}]
		},
		{
			"name": "Unpaused",
			"type": "event",
			"inputs": [{"name": "account", "type": "address", "indexed": false}]
		},
		{
			"name": "Deposit",
			"type": "event",
			"inputs": [
				{"name": "sender", "type": "address", "indexed": true},
				{"name": "owner", "type": "address", "indexed": true},
				{"name": "assets", "type": "uint256", "indexed": false},
				{"name": "shares", "type": "uint256", "indexed": false}
			]
		},
		{
			"name": "Withdraw",
			"type": "event",
			"inputs": [
				{"name": "sender", "type": "address", "indexed": true},
				{"name": "receiver", "type": "address", "indexed": true},
				{"name": "owner", "type": "address", "indexed": true},
				{"name": "assets", "type": "uint256", "indexed": false},
				{"name": "shares", "type": "uint256", "indexed": false}
			]
		}
	]`))
	if err != nil {
		panic("chain: vault abi parse: " + err.Error())
	}
}

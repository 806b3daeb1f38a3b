// Package chain wraps the JSON-RPC clients for the marketplace and vault
// contracts. All ABI packing and decoding happens here; callers work with
// typed records and typed errors only.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/yamops/yamkeeper/internal/domain"
)

const source = "chain"

// receiptTimeout bounds how long a state-changing call waits for its receipt.
const receiptTimeout = 90 * time.Second

// Client is the typed gateway to the chain. The HTTP endpoint serves reads
// and transactions; the websocket endpoint, when configured, serves event
// subscriptions.
type Client struct {
	eth         *ethclient.Client
	ws          *ethclient.Client
	marketplace common.Address
	chainID     *big.Int

	// nil key means read-only: state-changing calls fail fast.
	key    *ecdsa.PrivateKey
	sender common.Address

	logger *slog.Logger
}

// Dial connects to the chain. wsURL may be empty, in which case watch
// subscriptions are unavailable. key may be nil for read-only operation.
func Dial(ctx context.Context, rpcURL, wsURL string, chainID int64, marketplace common.Address, key *ecdsa.PrivateKey, logger *slog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial rpc %s: %w", rpcURL, err)
	}

	var ws *ethclient.Client
	if wsURL != "" {
		ws, err = ethclient.DialContext(ctx, wsURL)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("chain: dial ws %s: %w", wsURL, err)
		}
	}

	c := &Client{
		eth:         eth,
		ws:          ws,
		marketplace: marketplace,
		chainID:     big.NewInt(chainID),
		key:         key,
		logger:      logger,
	}
	if key != nil {
		c.sender = ethcrypto.PubkeyToAddress(key.PublicKey)
	}

	return c, nil
}

// Sender returns the operator address, or the zero address in read-only mode.
func (c *Client) Sender() common.Address { return c.sender }

// Close tears down both RPC connections.
func (c *Client) Close() {
	c.eth.Close()
	if c.ws != nil {
		c.ws.Close()
	}
}

// call performs an eth_call against to and returns the unpacked outputs.
func (c *Client) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, domain.NewExternalError(source, method, 0, err)
	}

	vals, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, domain.NewExternalError(source, "unpack "+method, 0, err)
	}
	return vals, nil
}

// transact simulates, signs, sends, and confirms a state-changing call. A
// simulation revert or a failed receipt surfaces as ErrTxFailed; transport
// problems surface as *ExternalError.
func (c *Client) transact(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...any) error {
	if c.key == nil {
		return fmt.Errorf("chain: %s: no signing key configured", method)
	}

	data, err := parsed.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("chain: pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{From: c.sender, To: &to, Data: data}

	// Simulate first so an obvious revert never costs gas.
	if _, err := c.eth.CallContract(ctx, msg, nil); err != nil {
		return fmt.Errorf("chain: %s: simulation: %w: %v", method, domain.ErrTxFailed, err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.sender)
	if err != nil {
		return domain.NewExternalError(source, method+" nonce", 0, err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return domain.NewExternalError(source, method+" gas price", 0, err)
	}
	gasLimit, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		return domain.NewExternalError(source, method+" gas estimate", 0, err)
	}
	gasLimit = gasLimit * 12 / 10

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return fmt.Errorf("chain: %s: sign: %w", method, err)
	}

	if err := c.eth.SendTransaction(ctx, signedTx); err != nil {
		return domain.NewExternalError(source, method+" send", 0, err)
	}

	txHash := signedTx.Hash()
	c.logger.Info("transaction sent", "method", method, "to", to.Hex(), "tx", txHash.Hex())

	receiptCtx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(receiptCtx, c.eth, signedTx)
	if err != nil {
		return domain.NewExternalError(source, method+" receipt", 0, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("chain: %s: tx %s: %w", method, txHash.Hex(), domain.ErrTxFailed)
	}

	c.logger.Info("transaction confirmed", "method", method, "tx", txHash.Hex(), "gas_used", receipt.GasUsed)
	return nil
}

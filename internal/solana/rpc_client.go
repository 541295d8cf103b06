package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"
)

// Default configuration values.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultCommitment = "confirmed"
)

// HTTPClient implements RPCClient using HTTP JSON-RPC 2.0.
// Each call is a single attempt; retry belongs to the caller.
type HTTPClient struct {
	endpoint   string
	client     *http.Client
	commitment string
	observe    func(method string, d time.Duration)
	requestID  atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithCommitment sets the commitment level sent with every request.
func WithCommitment(commitment string) ClientOption {
	return func(c *HTTPClient) {
		c.commitment = commitment
	}
}

// WithLatencyHook registers fn to receive the duration of every call,
// failed calls included.
func WithLatencyHook(fn func(method string, d time.Duration)) ClientOption {
	return func(c *HTTPClient) {
		c.observe = fn
	}
}

// NewHTTPClient creates a new Solana RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: DefaultTimeout},
		commitment: DefaultCommitment,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ RPCClient = (*HTTPClient)(nil)

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// call performs one JSON-RPC call and classifies the failure.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if c.observe != nil {
		start := time.Now()
		defer func() { c.observe(method, time.Since(start)) }()
	}

	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %w", method, ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w: %w", method, ErrTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %w", method, &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(respBody)})
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("%s: unmarshal response: %w: %w", method, ErrTransient, err)
	}

	if rpcResp.Error != nil {
		return fmt.Errorf("%s: %w", method, rpcResp.Error)
	}

	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("%s: unmarshal result: %w", method, err)
		}
	}

	return nil
}

// GetTransaction retrieves a transaction by signature.
func (c *HTTPClient) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "json",
			"commitment":                     c.commitment,
			"maxSupportedTransactionVersion": 0,
		},
	}

	var result *getTransactionResult
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("getTransaction %s: %w", signature, ErrNotFound)
	}

	var blockTime int64
	if result.BlockTime != nil {
		blockTime = *result.BlockTime
	}

	tx := convertTransaction(result.Slot, blockTime, result.Transaction, result.Meta)
	if tx.Signature == "" {
		tx.Signature = signature
	}
	return &tx, nil
}

// getTransactionResult is the raw RPC response for getTransaction.
type getTransactionResult struct {
	Slot        uint64              `json:"slot"`
	BlockTime   *int64              `json:"blockTime"`
	Meta        *getTransactionMeta `json:"meta"`
	Transaction getTransactionTx    `json:"transaction"`
}

type getTransactionMeta struct {
	Err                  interface{}         `json:"err"`
	Fee                  uint64              `json:"fee"`
	ComputeUnitsConsumed *uint64             `json:"computeUnitsConsumed"`
	LogMessages          []string            `json:"logMessages"`
	PreTokenBalances     []getTokenBalance   `json:"preTokenBalances"`
	PostTokenBalances    []getTokenBalance   `json:"postTokenBalances"`
	LoadedAddresses      *getLoadedAddresses `json:"loadedAddresses"`
}

type getLoadedAddresses struct {
	Writable []string `json:"writable"`
	Readonly []string `json:"readonly"`
}

type getTokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		Amount   string `json:"amount"`
		Decimals uint8  `json:"decimals"`
	} `json:"uiTokenAmount"`
}

type getTransactionTx struct {
	Signatures []string               `json:"signatures"`
	Message    *getTransactionMessage `json:"message"`
}

type getTransactionMessage struct {
	AccountKeys  []string         `json:"accountKeys"`
	Instructions []getInstruction `json:"instructions"`
}

type getInstruction struct {
	ProgramIDIndex int    `json:"programIdIndex"`
	Accounts       []int  `json:"accounts"`
	Data           string `json:"data"` // base58
}

// convertTransaction maps the wire shape onto Transaction.
func convertTransaction(slot uint64, blockTime int64, raw getTransactionTx, meta *getTransactionMeta) Transaction {
	tx := Transaction{
		Slot:      slot,
		BlockTime: blockTime,
	}

	if len(raw.Signatures) > 0 {
		tx.Signature = raw.Signatures[0]
	}

	if meta != nil {
		tx.Meta = &TransactionMeta{
			Err:                  meta.Err,
			Fee:                  meta.Fee,
			ComputeUnitsConsumed: meta.ComputeUnitsConsumed,
			LogMessages:          meta.LogMessages,
			PreTokenBalances:     convertTokenBalances(meta.PreTokenBalances),
			PostTokenBalances:    convertTokenBalances(meta.PostTokenBalances),
		}
		if meta.LoadedAddresses != nil {
			tx.Meta.LoadedAddresses = LoadedAddresses{
				Writable: meta.LoadedAddresses.Writable,
				Readonly: meta.LoadedAddresses.Readonly,
			}
		}
	}

	if raw.Message != nil {
		msg := &TransactionMessage{
			AccountKeys:  raw.Message.AccountKeys,
			Instructions: make([]CompiledInstruction, 0, len(raw.Message.Instructions)),
		}
		for _, ix := range raw.Message.Instructions {
			// Undecodable data is left nil; the instruction decoder reports it.
			data, err := base58.Decode(ix.Data)
			msg.Instructions = append(msg.Instructions, CompiledInstruction{
				ProgramIDIndex: ix.ProgramIDIndex,
				Accounts:       ix.Accounts,
				Data:           data,
				DataErr:        err,
			})
		}
		tx.Message = msg
	}

	return tx
}

func convertTokenBalances(raw []getTokenBalance) []TokenBalance {
	if len(raw) == 0 {
		return nil
	}
	out := make([]TokenBalance, len(raw))
	for i, b := range raw {
		out[i] = TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint,
			Owner:        b.Owner,
			Amount:       b.UITokenAmount.Amount,
			Decimals:     b.UITokenAmount.Decimals,
		}
	}
	return out
}

// GetBlock retrieves a block by slot number.
func (c *HTTPClient) GetBlock(ctx context.Context, slot uint64) (*Block, error) {
	params := []interface{}{
		slot,
		map[string]interface{}{
			"encoding":                       "json",
			"transactionDetails":             "full",
			"rewards":                        false,
			"commitment":                     c.commitment,
			"maxSupportedTransactionVersion": 0,
		},
	}

	var result *getBlockResult
	if err := c.call(ctx, "getBlock", params, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("getBlock %d: %w", slot, ErrNotFound)
	}

	block := &Block{
		Slot:              slot,
		BlockTime:         result.BlockTime,
		BlockHeight:       result.BlockHeight,
		Blockhash:         result.Blockhash,
		PreviousBlockhash: result.PreviousBlockhash,
		ParentSlot:        result.ParentSlot,
		Transactions:      make([]Transaction, 0, len(result.Transactions)),
	}

	var blockTime int64
	if result.BlockTime != nil {
		blockTime = *result.BlockTime
	}

	for _, txWrapper := range result.Transactions {
		block.Transactions = append(block.Transactions,
			convertTransaction(slot, blockTime, txWrapper.Transaction, txWrapper.Meta))
	}

	return block, nil
}

// getBlockResult is the raw RPC response for getBlock.
type getBlockResult struct {
	BlockTime         *int64              `json:"blockTime"`
	BlockHeight       *uint64             `json:"blockHeight"`
	Blockhash         string              `json:"blockhash"`
	PreviousBlockhash string              `json:"previousBlockhash"`
	ParentSlot        uint64              `json:"parentSlot"`
	Transactions      []getBlockTxWrapper `json:"transactions"`
}

type getBlockTxWrapper struct {
	Transaction getTransactionTx    `json:"transaction"`
	Meta        *getTransactionMeta `json:"meta"`
}

// GetSignaturesForAddress retrieves signatures for an address with pagination.
func (c *HTTPClient) GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error) {
	config := map[string]interface{}{
		"commitment": c.commitment,
	}
	if opts != nil {
		if opts.Before != "" {
			config["before"] = opts.Before
		}
		if opts.Until != "" {
			config["until"] = opts.Until
		}
		if opts.Limit > 0 {
			config["limit"] = opts.Limit
		}
	}

	params := []interface{}{address, config}

	var result []getSignaturesResult
	if err := c.call(ctx, "getSignaturesForAddress", params, &result); err != nil {
		return nil, err
	}

	sigs := make([]SignatureInfo, len(result))
	for i, r := range result {
		sigs[i] = SignatureInfo{
			Signature: r.Signature,
			Slot:      r.Slot,
			BlockTime: r.BlockTime,
			Err:       r.Err,
		}
	}

	return sigs, nil
}

// getSignaturesResult is the raw RPC response item for getSignaturesForAddress.
type getSignaturesResult struct {
	Signature string      `json:"signature"`
	Slot      uint64      `json:"slot"`
	BlockTime *int64      `json:"blockTime"`
	Err       interface{} `json:"err"`
}

// GetSlot retrieves the current slot.
func (c *HTTPClient) GetSlot(ctx context.Context) (uint64, error) {
	params := []interface{}{
		map[string]interface{}{"commitment": c.commitment},
	}
	var result uint64
	if err := c.call(ctx, "getSlot", params, &result); err != nil {
		return 0, err
	}
	return result, nil
}

// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package blockfrost is an HTTP client for the Blockfrost chain
// indexing and submission API. It implements chain.Provider.
package blockfrost

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/classly/chain"
)

// Default API base URLs for each supported Cardano network.
var DefaultBaseURLs = map[string]string{
	"mainnet": "https://cardano-mainnet.blockfrost.io/api/v0",
	"preview": "https://cardano-preview.blockfrost.io/api/v0",
}

// BaseURLForNetwork returns the default Blockfrost base URL for the
// given network name, or an error if the network is not recognized.
func BaseURLForNetwork(network string) (string, error) {
	baseURL, ok := DefaultBaseURLs[network]
	if !ok {
		return "", fmt.Errorf(
			"no Blockfrost base URL for network %q",
			network,
		)
	}
	return baseURL, nil
}

const (
	// utxoPageSize is the Blockfrost maximum page size.
	utxoPageSize = 100
	// maxResponseBytes limits JSON API responses to 10 MiB.
	maxResponseBytes = 10 << 20
	// defaultPollInterval is the confirmation polling period.
	defaultPollInterval = 5 * time.Second
)

// Client is an HTTP client for the Blockfrost REST API.
type Client struct {
	baseURL      string
	projectID    string
	httpClient   *http.Client
	pollInterval time.Duration
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithPollInterval sets the confirmation polling period.
func WithPollInterval(interval time.Duration) ClientOption {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// NewClient creates a Blockfrost API client. The projectID is the
// provider access credential sent with every request.
func NewClient(
	baseURL string,
	projectID string,
	opts ...ClientOption,
) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		projectID: projectID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health verifies the provider is reachable and healthy.
func (c *Client) Health(ctx context.Context) error {
	body, err := c.doGet(ctx, c.baseURL+"/health")
	if err != nil {
		return fmt.Errorf("checking provider health: %w", err)
	}
	defer body.Close()

	var health struct {
		IsHealthy bool `json:"is_healthy"`
	}
	if err := json.NewDecoder(body).Decode(&health); err != nil {
		return fmt.Errorf(
			"%w: decoding health response: %s",
			chain.ErrProvider,
			err,
		)
	}
	if !health.IsHealthy {
		return fmt.Errorf("%w: provider reports unhealthy", chain.ErrProvider)
	}
	return nil
}

type addressUtxo struct {
	Address     string `json:"address"`
	TxHash      string `json:"tx_hash"`
	OutputIndex uint32 `json:"output_index"`
	Amount      []struct {
		Unit     string `json:"unit"`
		Quantity string `json:"quantity"`
	} `json:"amount"`
	InlineDatum *string `json:"inline_datum"`
}

// UtxosAt returns the unspent outputs at an address, following
// pagination until the provider returns a short page.
func (c *Client) UtxosAt(
	ctx context.Context,
	address string,
) ([]chain.Utxo, error) {
	var ret []chain.Utxo
	for page := 1; ; page++ {
		reqURL := fmt.Sprintf(
			"%s/addresses/%s/utxos?count=%d&page=%d",
			c.baseURL,
			url.PathEscape(address),
			utxoPageSize,
			page,
		)
		body, err := c.doGet(ctx, reqURL)
		if err != nil {
			// Blockfrost reports an address with no history
			// as 404 rather than an empty list
			if errors.Is(err, errNotFound) {
				return ret, nil
			}
			return nil, fmt.Errorf(
				"querying utxos at %s: %w",
				address,
				err,
			)
		}
		var pageUtxos []addressUtxo
		decodeErr := json.NewDecoder(body).Decode(&pageUtxos)
		body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf(
				"%w: decoding utxo response: %s",
				chain.ErrProvider,
				decodeErr,
			)
		}
		for _, u := range pageUtxos {
			converted, err := convertUtxo(address, u)
			if err != nil {
				return nil, err
			}
			ret = append(ret, converted)
		}
		if len(pageUtxos) < utxoPageSize {
			return ret, nil
		}
	}
}

func convertUtxo(address string, u addressUtxo) (chain.Utxo, error) {
	val := make(chain.Value, len(u.Amount))
	for _, amount := range u.Amount {
		quantity, err := strconv.ParseUint(amount.Quantity, 10, 64)
		if err != nil {
			return chain.Utxo{}, fmt.Errorf(
				"%w: invalid asset quantity %q",
				chain.ErrProvider,
				amount.Quantity,
			)
		}
		val[amount.Unit] += quantity
	}
	utxoAddr := u.Address
	if utxoAddr == "" {
		utxoAddr = address
	}
	ret := chain.Utxo{
		Ref: chain.OutRef{
			TxID:  u.TxHash,
			Index: u.OutputIndex,
		},
		Address: utxoAddr,
		Value:   val,
	}
	if u.InlineDatum != nil && *u.InlineDatum != "" {
		datum, err := hex.DecodeString(*u.InlineDatum)
		if err != nil {
			return chain.Utxo{}, fmt.Errorf(
				"%w: invalid inline datum hex",
				chain.ErrProvider,
			)
		}
		ret.InlineDatum = datum
	}
	return ret, nil
}

// SubmitTx submits a signed transaction. A rejection caused by an
// already-spent input is reported as chain.ErrStaleUtxo so callers
// can re-query and retry; any other rejection is
// chain.ErrSubmission.
func (c *Client) SubmitTx(
	ctx context.Context,
	txCbor []byte,
) (string, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/tx/submit",
		bytes.NewReader(txCbor),
	)
	if err != nil {
		return "", fmt.Errorf("creating submit request: %w", err)
	}
	req.Header.Set("project_id", c.projectID)
	req.Header.Set("Content-Type", "application/cbor")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", chain.ErrNetwork, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode != http.StatusOK {
		return "", submitError(resp.StatusCode, respBody)
	}

	// The response body is the transaction hash as a JSON string
	var txID string
	if err := json.Unmarshal(respBody, &txID); err != nil {
		// Some deployments return the bare hash
		txID = strings.Trim(strings.TrimSpace(string(respBody)), `"`)
	}
	if txID == "" {
		return "", fmt.Errorf(
			"%w: empty transaction id in submit response",
			chain.ErrProvider,
		)
	}
	return txID, nil
}

// submitError maps a submission rejection to the error taxonomy.
func submitError(statusCode int, body []byte) error {
	switch statusCode {
	case http.StatusPaymentRequired,
		http.StatusForbidden,
		http.StatusTooManyRequests:
		return fmt.Errorf(
			"%w: status %d: %s",
			chain.ErrProvider,
			statusCode,
			string(body),
		)
	}
	// The ledger reports consumed inputs as BadInputsUTxO inside
	// the UtxoFailure wrapper
	if bytes.Contains(body, []byte("BadInputsUTxO")) {
		return fmt.Errorf("%w: %s", chain.ErrStaleUtxo, string(body))
	}
	return fmt.Errorf(
		"%w: status %d: %s",
		chain.ErrSubmission,
		statusCode,
		string(body),
	)
}

// AwaitConfirmation polls for the transaction until it is visible
// on-chain or the context is done.
func (c *Client) AwaitConfirmation(
	ctx context.Context,
	txID string,
) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		confirmed, err := c.txExists(ctx, txID)
		if err != nil {
			return err
		}
		if confirmed {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf(
				"awaiting confirmation of %s: %w",
				txID,
				ctx.Err(),
			)
		case <-ticker.C:
		}
	}
}

func (c *Client) txExists(
	ctx context.Context,
	txID string,
) (bool, error) {
	body, err := c.doGet(
		ctx,
		c.baseURL+"/txs/"+url.PathEscape(txID),
	)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return false, nil
		}
		return false, fmt.Errorf(
			"checking confirmation of %s: %w",
			txID,
			err,
		)
	}
	body.Close()
	return true, nil
}

// errNotFound marks a 404 response so callers can treat "not found"
// as an empty result rather than a failure.
var errNotFound = errors.New("not found")

// doGet performs an HTTP GET request with the provider credential
// and returns the response body. The caller is responsible for
// closing the returned ReadCloser.
func (c *Client) doGet(
	ctx context.Context,
	reqURL string,
) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		reqURL,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("project_id", c.projectID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", chain.ErrNetwork, err)
	}
	if resp == nil || resp.Body == nil {
		return nil, fmt.Errorf(
			"%w: nil response from server",
			chain.ErrNetwork,
		)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(
			io.LimitReader(resp.Body, 1024),
		)
		if resp.StatusCode == http.StatusNotFound {
			return nil, errNotFound
		}
		return nil, fmt.Errorf(
			"%w: unexpected status %d: %s",
			chain.ErrProvider,
			resp.StatusCode,
			string(bodyBytes),
		)
	}

	return &limitedReadCloser{
		Reader: io.LimitReader(resp.Body, maxResponseBytes),
		Closer: resp.Body,
	}, nil
}

// limitedReadCloser wraps a size-limited Reader with the underlying
// connection's Closer.
type limitedReadCloser struct {
	io.Reader
	io.Closer
}

// Compile-time interface check
var _ chain.Provider = (*Client)(nil)

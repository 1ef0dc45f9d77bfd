package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// IndexerClient queries an NFT indexer API for ownership questions the
// chain cannot answer directly, such as "does this account hold any
// token of this ERC-1155 contract".
type IndexerClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewIndexerClient creates a client for an Alchemy-compatible NFT API
func NewIndexerClient(baseURL, apiKey string) *IndexerClient {
	return &IndexerClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type indexerNFTsResponse struct {
	OwnedNFTs []struct {
		Contract struct {
			Address string `json:"address"`
		} `json:"contract"`
		Balance string `json:"balance"`
	} `json:"ownedNfts"`
	PageKey    string `json:"pageKey"`
	TotalCount int    `json:"totalCount"`
}

// OwnsAnyToken reports whether owner holds at least one token of the
// given contract according to the indexer.
func (c *IndexerClient) OwnsAnyToken(ctx context.Context, owner, contract string) (bool, error) {
	endpoint := c.baseURL
	if c.apiKey != "" {
		endpoint += "/" + c.apiKey
	}
	endpoint += "/getNFTs"

	params := url.Values{}
	params.Set("owner", owner)
	params.Add("contractAddresses[]", contract)
	params.Set("withMetadata", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("indexer returned status %d", resp.StatusCode)
	}

	var result indexerNFTsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decode indexer response: %w", err)
	}
	return result.TotalCount > 0 || len(result.OwnedNFTs) > 0, nil
}

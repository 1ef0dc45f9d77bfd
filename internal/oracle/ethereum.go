package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/tokenproof/ticket-gate/internal/config"
	"github.com/tokenproof/ticket-gate/internal/connection"
	"github.com/tokenproof/ticket-gate/internal/metrics"
	"github.com/tokenproof/ticket-gate/internal/models"
	"github.com/tokenproof/ticket-gate/pkg/utils"
)

const erc721ABIJSON = `[
	{"name":"ownerOf","type":"function","stateMutability":"view",
	 "inputs":[{"name":"tokenId","type":"uint256"}],
	 "outputs":[{"name":"","type":"address"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

const erc1155ABIJSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

var (
	erc721ABI  abi.ABI
	erc1155ABI abi.ABI
)

func init() {
	var err error
	if erc721ABI, err = abi.JSON(strings.NewReader(erc721ABIJSON)); err != nil {
		panic(fmt.Sprintf("parse erc721 abi: %v", err))
	}
	if erc1155ABI, err = abi.JSON(strings.NewReader(erc1155ABIJSON)); err != nil {
		panic(fmt.Sprintf("parse erc1155 abi: %v", err))
	}
}

// ChainOracle resolves ownership and names against live chain state
// through the connection registry.
type ChainOracle struct {
	registry *connection.Registry
	ensChain string
	ensAddr  common.Address
	indexers map[string]*IndexerClient
	logger   *logrus.Entry

	metricsManager *metrics.Manager
}

// NewChainOracle creates an oracle over the configured chains
func NewChainOracle(registry *connection.Registry, cfg *config.Config) *ChainOracle {
	indexers := make(map[string]*IndexerClient)
	for chainID, chain := range cfg.Chains {
		if chain.IndexerURL != "" {
			indexers[chainID] = NewIndexerClient(chain.IndexerURL, chain.IndexerAPIKey)
		}
	}

	return &ChainOracle{
		registry: registry,
		ensChain: cfg.ENS.ChainID,
		ensAddr:  common.HexToAddress(cfg.ENS.RegistryAddress),
		indexers: indexers,
		logger:   utils.ComponentLogger("oracle"),
	}
}

// SetMetricsManager attaches a metrics manager for oracle instrumentation
func (o *ChainOracle) SetMetricsManager(m *metrics.Manager) {
	o.metricsManager = m
}

// IsOwner checks current token ownership. An empty token id means a
// collection-level check.
func (o *ChainOracle) IsOwner(ctx context.Context, account string, nft models.NFT) (bool, error) {
	if !utils.IsValidAddress(account) {
		return false, nil
	}

	switch nft.TokenType {
	case models.TokenTypeERC721:
		if nft.TokenID == "" {
			return o.erc721HasBalance(ctx, account, nft)
		}
		return o.erc721OwnsToken(ctx, account, nft)
	case models.TokenTypeERC1155:
		if nft.TokenID == "" {
			return o.erc1155OwnsAny(ctx, account, nft)
		}
		return o.erc1155OwnsToken(ctx, account, nft)
	default:
		return false, fmt.Errorf("unsupported token type: %s", nft.TokenType)
	}
}

func (o *ChainOracle) erc721OwnsToken(ctx context.Context, account string, nft models.NFT) (bool, error) {
	tokenID, err := parseTokenID(nft.TokenID)
	if err != nil {
		return false, err
	}

	data, err := erc721ABI.Pack("ownerOf", tokenID)
	if err != nil {
		return false, err
	}

	out, err := o.call(ctx, nft.ChainID, "ownerOf", common.HexToAddress(nft.ContractAddress), data)
	if err != nil {
		// ownerOf reverts for tokens that do not exist
		if isRevert(err) {
			return false, nil
		}
		return false, err
	}

	results, err := erc721ABI.Unpack("ownerOf", out)
	if err != nil || len(results) != 1 {
		return false, fmt.Errorf("decode ownerOf result: %w", err)
	}
	owner, ok := results[0].(common.Address)
	if !ok {
		return false, fmt.Errorf("unexpected ownerOf result type")
	}
	return utils.SameAddress(owner.Hex(), account), nil
}

func (o *ChainOracle) erc721HasBalance(ctx context.Context, account string, nft models.NFT) (bool, error) {
	data, err := erc721ABI.Pack("balanceOf", common.HexToAddress(account))
	if err != nil {
		return false, err
	}

	out, err := o.call(ctx, nft.ChainID, "balanceOf", common.HexToAddress(nft.ContractAddress), data)
	if err != nil {
		if isRevert(err) {
			return false, nil
		}
		return false, err
	}

	balance, err := unpackBigInt(erc721ABI, "balanceOf", out)
	if err != nil {
		return false, err
	}
	return balance.Sign() > 0, nil
}

func (o *ChainOracle) erc1155OwnsToken(ctx context.Context, account string, nft models.NFT) (bool, error) {
	tokenID, err := parseTokenID(nft.TokenID)
	if err != nil {
		return false, err
	}

	data, err := erc1155ABI.Pack("balanceOf", common.HexToAddress(account), tokenID)
	if err != nil {
		return false, err
	}

	out, err := o.call(ctx, nft.ChainID, "balanceOf", common.HexToAddress(nft.ContractAddress), data)
	if err != nil {
		if isRevert(err) {
			return false, nil
		}
		return false, err
	}

	balance, err := unpackBigInt(erc1155ABI, "balanceOf", out)
	if err != nil {
		return false, err
	}
	return balance.Sign() > 0, nil
}

// erc1155OwnsAny checks collection-level ownership for contracts where
// no single token id is named. ERC-1155 has no on-chain enumeration, so
// this needs an indexer. Without one the answer is no.
func (o *ChainOracle) erc1155OwnsAny(ctx context.Context, account string, nft models.NFT) (bool, error) {
	indexer, ok := o.indexers[nft.ChainID]
	if !ok {
		o.logger.WithFields(logrus.Fields{
			"chain_id": nft.ChainID,
			"contract": nft.ContractAddress,
		}).Warn("No indexer configured for collection-level ERC-1155 check")
		return false, nil
	}

	start := time.Now()
	owns, err := indexer.OwnsAnyToken(ctx, account, nft.ContractAddress)
	o.recordRequest(nft.ChainID, "indexer_owns_any", err, start)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return owns, nil
}

// call performs an eth_call against the chain's current node
func (o *ChainOracle) call(ctx context.Context, chainID, method string, to common.Address, data []byte) ([]byte, error) {
	start := time.Now()

	cm, err := o.registry.Get(chainID)
	if err != nil {
		o.recordRequest(chainID, method, err, start)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	client, err := cm.GetClientWithContext(ctx)
	if err != nil {
		o.recordRequest(chainID, method, err, start)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	o.recordRequest(chainID, method, err, start)
	if err != nil {
		if isRevert(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (o *ChainOracle) recordRequest(chainID, method string, err error, start time.Time) {
	if o.metricsManager == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	o.metricsManager.RecordOracleRequest(chainID, method, status, time.Since(start))
}

func isRevert(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "execution reverted") ||
		strings.Contains(err.Error(), "revert")
}

func parseTokenID(s string) (*big.Int, error) {
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	id, ok := new(big.Int).SetString(s, base)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("invalid token id: %q", s)
	}
	return id, nil
}

func unpackBigInt(contractABI abi.ABI, method string, out []byte) (*big.Int, error) {
	results, err := contractABI.Unpack(method, out)
	if err != nil || len(results) != 1 {
		return nil, fmt.Errorf("decode %s result: %w", method, err)
	}
	value, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result type", method)
	}
	return value, nil
}

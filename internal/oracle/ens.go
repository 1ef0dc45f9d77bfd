package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tokenproof/ticket-gate/pkg/utils"
)

const ensRegistryABIJSON = `[
	{"name":"resolver","type":"function","stateMutability":"view",
	 "inputs":[{"name":"node","type":"bytes32"}],
	 "outputs":[{"name":"","type":"address"}]}
]`

const ensResolverABIJSON = `[
	{"name":"addr","type":"function","stateMutability":"view",
	 "inputs":[{"name":"node","type":"bytes32"}],
	 "outputs":[{"name":"","type":"address"}]},
	{"name":"name","type":"function","stateMutability":"view",
	 "inputs":[{"name":"node","type":"bytes32"}],
	 "outputs":[{"name":"","type":"string"}]}
]`

var (
	ensRegistryABI abi.ABI
	ensResolverABI abi.ABI
)

func init() {
	var err error
	if ensRegistryABI, err = abi.JSON(strings.NewReader(ensRegistryABIJSON)); err != nil {
		panic(fmt.Sprintf("parse ens registry abi: %v", err))
	}
	if ensResolverABI, err = abi.JSON(strings.NewReader(ensResolverABIJSON)); err != nil {
		panic(fmt.Sprintf("parse ens resolver abi: %v", err))
	}
}

// Namehash computes the EIP-137 node hash for an ENS name
func Namehash(name string) [32]byte {
	var node [32]byte
	if name == "" {
		return node
	}

	labels := strings.Split(strings.ToLower(name), ".")
	for i := len(labels) - 1; i >= 0; i-- {
		labelHash := crypto.Keccak256([]byte(labels[i]))
		node = [32]byte(crypto.Keccak256(node[:], labelHash))
	}
	return node
}

// ResolveName resolves an ENS name to its current address. An empty
// string means the name has no resolver or no address record.
func (o *ChainOracle) ResolveName(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", nil
	}

	node := Namehash(name)
	resolver, err := o.lookupResolver(ctx, node)
	if err != nil {
		return "", err
	}
	if resolver == (common.Address{}) {
		return "", nil
	}

	data, err := ensResolverABI.Pack("addr", node)
	if err != nil {
		return "", err
	}
	out, err := o.call(ctx, o.ensChain, "ens_addr", resolver, data)
	if err != nil {
		if isRevert(err) {
			return "", nil
		}
		return "", err
	}

	results, err := ensResolverABI.Unpack("addr", out)
	if err != nil || len(results) != 1 {
		return "", fmt.Errorf("decode addr result: %w", err)
	}
	addr, ok := results[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("unexpected addr result type")
	}
	if addr == (common.Address{}) {
		return "", nil
	}
	return addr.Hex(), nil
}

// ReverseResolve returns the primary ENS name for an address via the
// addr.reverse namespace, or an empty string when none is set.
func (o *ChainOracle) ReverseResolve(ctx context.Context, address string) (string, error) {
	if address == "" {
		return "", nil
	}

	reverseName := strings.ToLower(strings.TrimPrefix(address, "0x")) + ".addr.reverse"
	node := Namehash(reverseName)

	resolver, err := o.lookupResolver(ctx, node)
	if err != nil {
		return "", err
	}
	if resolver == (common.Address{}) {
		return "", nil
	}

	data, err := ensResolverABI.Pack("name", node)
	if err != nil {
		return "", err
	}
	out, err := o.call(ctx, o.ensChain, "ens_name", resolver, data)
	if err != nil {
		if isRevert(err) {
			return "", nil
		}
		return "", err
	}

	results, err := ensResolverABI.Unpack("name", out)
	if err != nil || len(results) != 1 {
		return "", fmt.Errorf("decode name result: %w", err)
	}
	name, ok := results[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected name result type")
	}
	if name == "" {
		return "", nil
	}

	// The reverse record is set by the address itself. Confirm the name
	// forward-resolves back before reporting it as the primary name.
	forward, err := o.ResolveName(ctx, name)
	if err != nil {
		return "", err
	}
	if !utils.SameAddress(forward, address) {
		return "", nil
	}
	return name, nil
}

func (o *ChainOracle) lookupResolver(ctx context.Context, node [32]byte) (common.Address, error) {
	data, err := ensRegistryABI.Pack("resolver", node)
	if err != nil {
		return common.Address{}, err
	}

	out, err := o.call(ctx, o.ensChain, "ens_resolver", o.ensAddr, data)
	if err != nil {
		if isRevert(err) {
			return common.Address{}, nil
		}
		return common.Address{}, err
	}

	results, err := ensRegistryABI.Unpack("resolver", out)
	if err != nil || len(results) != 1 {
		return common.Address{}, fmt.Errorf("decode resolver result: %w", err)
	}
	resolver, ok := results[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected resolver result type")
	}
	return resolver, nil
}

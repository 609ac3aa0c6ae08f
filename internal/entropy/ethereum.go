package entropy

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
)

// EthereumSource uses the hash of the latest block.
type EthereumSource struct {
	client *ethclient.Client
}

func NewEthereumSource(ctx context.Context, rpcURL string) (*EthereumSource, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return &EthereumSource{client: client}, nil
}

func (s *EthereumSource) Name() string { return "ethereum" }

func (s *EthereumSource) PublicSeed(ctx context.Context) (string, error) {
	header, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%w: latest header: %v", ErrEntropyUnavailable, err)
	}
	return header.Hash().Hex(), nil
}

func (s *EthereumSource) Close() {
	s.client.Close()
}

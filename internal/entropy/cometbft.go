package entropy

import (
	"context"
	"fmt"

	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
)

// CometBFTSource uses the id of the latest committed block of a CometBFT chain.
type CometBFTSource struct {
	client *rpchttp.HTTP
}

func NewCometBFTSource(rpcURL string) (*CometBFTSource, error) {
	c, err := rpchttp.New(rpcURL, "/websocket")
	if err != nil {
		return nil, fmt.Errorf("failed to create cometbft client: %w", err)
	}
	return &CometBFTSource{client: c}, nil
}

func (s *CometBFTSource) Name() string { return "cometbft" }

func (s *CometBFTSource) PublicSeed(ctx context.Context) (string, error) {
	res, err := s.client.Block(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%w: latest block: %v", ErrEntropyUnavailable, err)
	}
	if res == nil || res.Block == nil {
		return "", fmt.Errorf("%w: empty block response", ErrEntropyUnavailable)
	}
	return res.BlockID.Hash.String(), nil
}

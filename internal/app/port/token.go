package port

import (
	"context"

	"networth_aggregator/internal/domain/entity"
)

// PriceIndex queries an external USD price index.
type PriceIndex interface {
	// GetPrice returns the price for "<namespace>:<address>". A missing coin is ErrPriceUnavailable.
	GetPrice(ctx context.Context, namespace, address string) (entity.IndexPrice, error)
}

// ManifestProvider loads named addresses from deployment manifests.
type ManifestProvider interface {
	GetAddressesByChain(chains []entity.ChainDescriptor) (map[uint64][]entity.AddressMetadata, error)
}

package manifestloader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"networth_aggregator/internal/app/port"
	"networth_aggregator/internal/domain/entity"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// manifestFile is the shape of <identifier>.json in the manifest directory.
type manifestFile struct {
	ChainID   uint64                   `json:"chainId"`
	Addresses []entity.AddressSpec `json:"addresses"`
}

// ManifestFileLoader implements port.ManifestProvider over a directory of JSON deployment manifests.
type ManifestFileLoader struct {
	dirPath string
	logger  *zap.Logger
}

var _ port.ManifestProvider = (*ManifestFileLoader)(nil)

// NewManifestLoader creates a loader for the given directory.
func NewManifestLoader(dirPath string, logger *zap.Logger) *ManifestFileLoader {
	return &ManifestFileLoader{dirPath: dirPath, logger: logger.Named("ManifestLoader")}
}

// GetAddressesByChain reads <identifier>.json for every chain. A missing directory
// or file yields no addresses; unreadable or mismatched files are skipped with a warning.
func (l *ManifestFileLoader) GetAddressesByChain(chains []entity.ChainDescriptor) (map[uint64][]entity.AddressMetadata, error) {
	out := make(map[uint64][]entity.AddressMetadata)
	if l.dirPath == "" {
		return out, nil
	}

	files, err := os.ReadDir(l.dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Info("Manifest directory not found, no manifests loaded", zap.String("path", l.dirPath))
			return out, nil
		}
		return nil, fmt.Errorf("failed to read manifest directory %s: %w", l.dirPath, err)
	}

	byIdentifier := make(map[string]entity.ChainDescriptor, len(chains))
	for _, c := range chains {
		byIdentifier[c.Identifier] = c
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(strings.ToLower(file.Name()), ".json") {
			continue
		}
		identifier := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
		chain, active := byIdentifier[identifier]
		if !active {
			l.logger.Debug("Manifest for an untracked network, skipping", zap.String("file", file.Name()))
			continue
		}

		path := filepath.Join(l.dirPath, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			l.logger.Warn("Failed to read manifest, skipping", zap.String("path", path), zap.Error(err))
			continue
		}

		var manifest manifestFile
		if err := json.Unmarshal(data, &manifest); err != nil {
			l.logger.Warn("Failed to decode manifest, skipping", zap.String("path", path), zap.Error(err))
			continue
		}
		if manifest.ChainID != 0 && manifest.ChainID != chain.ChainID {
			l.logger.Warn("Manifest chainId does not match network, skipping",
				zap.String("path", path),
				zap.Uint64("manifest_chain_id", manifest.ChainID),
				zap.Uint64("expected_chain_id", chain.ChainID))
			continue
		}

		for _, a := range manifest.Addresses {
			out[chain.ChainID] = append(out[chain.ChainID], a.Metadata())
		}
		l.logger.Info("Manifest loaded", zap.String("network", identifier), zap.Int("count", len(manifest.Addresses)))
	}
	return out, nil
}

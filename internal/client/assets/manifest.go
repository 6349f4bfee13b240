package assets

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/fieldsync/fieldsync/internal/client/storage"
)

// ManifestItem is one downloadable binary asset referenced by a
// protocol. URL resolution belongs to the protocol-definition layer;
// this package only fetches it.
type ManifestItem struct {
	Key     string `json:"key"`
	AssetID string `json:"assetId"`
	URL     string `json:"url"`
	Type    string `json:"type"`
}

// protocolDocument is the slice of a protocol definition this package
// cares about.
type protocolDocument struct {
	Assets []ManifestItem `json:"assets"`
}

// ExtractManifest parses a protocol definition and returns its asset
// manifest, validated and deduplicated by asset id. Malformed entries
// are dropped with a warning; one bad entry must not block the rest.
func ExtractManifest(protocolID string, protocolData []byte) ([]ManifestItem, error) {
	var doc protocolDocument
	if err := json.Unmarshal(protocolData, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse protocol definition: %w", err)
	}

	seen := make(map[string]bool, len(doc.Assets))
	items := make([]ManifestItem, 0, len(doc.Assets))
	for _, entry := range doc.Assets {
		if entry.AssetID == "" || entry.URL == "" {
			logrus.WithFields(logrus.Fields{
				"protocol_id": protocolID,
				"asset_id":    entry.AssetID,
			}).Warn("skipping malformed asset manifest entry")
			continue
		}
		if _, err := url.ParseRequestURI(entry.URL); err != nil {
			logrus.WithFields(logrus.Fields{
				"protocol_id": protocolID,
				"asset_id":    entry.AssetID,
			}).Warn("skipping asset with unparsable url")
			continue
		}
		if seen[entry.AssetID] {
			continue
		}
		seen[entry.AssetID] = true

		entry.Key = storage.AssetKey(protocolID, entry.AssetID)
		items = append(items, entry)
	}

	return items, nil
}

package interview

import (
	"encoding/json"

	"github.com/fieldsync/fieldsync/internal/crypto"
)

// secureCodebook is the crypto.Codebook read out of a protocol
// document. A protocol declares which attribute ids hold sensitive data
// under codebook.secureAttributes; everything else stays plaintext.
type secureCodebook struct {
	ids map[string]struct{}
}

func (c *secureCodebook) IsEncrypted(attributeID string) bool {
	if c == nil {
		return false
	}
	_, ok := c.ids[attributeID]
	return ok
}

type protocolCodebookDoc struct {
	Codebook struct {
		SecureAttributes []string `json:"secureAttributes"`
	} `json:"codebook"`
}

// parseCodebook extracts the secure attribute set from a protocol
// document. A protocol without a codebook section, or with an
// unparseable one, encrypts nothing.
func parseCodebook(protocolData []byte) crypto.Codebook {
	var doc protocolCodebookDoc
	if err := json.Unmarshal(protocolData, &doc); err != nil {
		return nil
	}
	if len(doc.Codebook.SecureAttributes) == 0 {
		return nil
	}

	ids := make(map[string]struct{}, len(doc.Codebook.SecureAttributes))
	for _, id := range doc.Codebook.SecureAttributes {
		ids[id] = struct{}{}
	}
	return &secureCodebook{ids: ids}
}

// anyEncrypted reports whether at least one present attribute is marked
// secure. Used to avoid prompting for a passphrase when nothing needs
// the key.
func anyEncrypted(attrs map[string]json.RawMessage, codebook crypto.Codebook) bool {
	if codebook == nil {
		return false
	}
	for id := range attrs {
		if codebook.IsEncrypted(id) {
			return true
		}
	}
	return false
}

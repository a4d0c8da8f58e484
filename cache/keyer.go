package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"golang.org/x/text/cases"
)

// SourceRef identifies one retrieved source for key derivation.
// Either field may be empty; Source wins over ID when both are set.
type SourceRef struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source,omitempty"`
}

// KeyPart returns the identifier this record contributes to a key.
// A record with neither field contributes "" so positions are preserved.
func (r SourceRef) KeyPart() string {
	if r.Source != "" {
		return r.Source
	}
	return r.ID
}

// Keyer derives cache keys from a query and its ordered retrieval sources.
// Keys are stable across processes; reordering sources changes the key.
type Keyer interface {
	Key(query string, sources []SourceRef) (string, error)
}

// DefaultKeyer hashes the normalized query and source identifiers with SHA-256.
type DefaultKeyer struct {
	// Prefix is prepended as "<prefix>:" when set.
	Prefix string
}

func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// keyMaterial is the hashed document. Field order is the sorted key order,
// so the encoding is canonical: {"q":...,"sources":[...]}. Valid UTF-8 text
// encodes as a JSON string; anything else as {"hex":...} so no two inputs
// share an encoding.
type keyMaterial struct {
	Query   any   `json:"q"`
	Sources []any `json:"sources"`
}

type rawText struct {
	Hex string `json:"hex"`
}

func newKeyMaterial(query string, sources []SourceRef) keyMaterial {
	m := keyMaterial{Query: textValue(NormalizeQuery(query)), Sources: make([]any, len(sources))}
	for i, s := range sources {
		m.Sources[i] = textValue(s.KeyPart())
	}
	return m
}

func textValue(s string) any {
	if utf8.ValidString(s) {
		return s
	}
	return rawText{Hex: hex.EncodeToString([]byte(s))}
}

// foldBytes case-folds each valid UTF-8 run of s and keeps invalid bytes as is.
func foldBytes(s string) string {
	if utf8.ValidString(s) {
		return cases.Fold().String(s)
	}
	var b strings.Builder
	start := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteString(cases.Fold().String(s[start:i]))
			b.WriteByte(s[i])
			i++
			start = i
			continue
		}
		i += size
	}
	b.WriteString(cases.Fold().String(s[start:]))
	return b.String()
}

// Key returns [<prefix>:]<lowercase hex sha256>.
func (k *DefaultKeyer) Key(query string, sources []SourceRef) (string, error) {
	doc, err := json.Marshal(newKeyMaterial(query, sources))
	if err != nil {
		return "", fmt.Errorf("cache: encode key material: %w", err)
	}
	sum := sha256.Sum256(doc)
	key := hex.EncodeToString(sum[:])
	if k.Prefix == "" {
		return key, nil
	}
	return k.Prefix + ":" + key, nil
}

// DeriveKey is DefaultKeyer without a prefix. Encoding strings cannot fail.
func DeriveKey(query string, sources []SourceRef) string {
	key, _ := (&DefaultKeyer{}).Key(query, sources)
	return key
}

// NormalizeQuery trims surrounding whitespace and case-folds the query.
// Interior whitespace and invalid UTF-8 bytes are kept as is.
func NormalizeQuery(query string) string {
	return foldBytes(strings.TrimSpace(query))
}

var _ Keyer = (*DefaultKeyer)(nil)

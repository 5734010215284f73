// Package idhash computes the deterministic, non-cryptographic document id
// hash used by the Document Builder.
package idhash

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// fieldDelimiter separates key-field values before hashing, matching the
// unit-separator convention this pipeline's manifest row digests also use.
const fieldDelimiter = "␟"

// KeyFieldsConcat joins ordered key-field values into the canonical string
// that gets hashed into a document id. A nil value serialises as the empty
// string, matching how absent optional key fields behave.
func KeyFieldsConcat(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			parts[i] = ""
			continue
		}
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, fieldDelimiter)
}

// Hex16 returns a stable, non-cryptographic 16-hex-character digest of s.
func Hex16(s string) string {
	sum := xxhash.Sum64String(s)
	return fmt.Sprintf("%016x", sum)
}

// DocumentID builds the "{model}:{hex16(hash(key_fields_concat))}" document
// id.
func DocumentID(modelName string, keyFieldValues []any) string {
	return modelName + ":" + Hex16(KeyFieldsConcat(keyFieldValues))
}

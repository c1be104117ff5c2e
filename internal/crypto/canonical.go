// declaration documents are canonicalized per RFC 8785 before hashing so that
// the recorded content hash is independent of JSON key order and whitespace.
// this implementation uses the gowebpki/jcs library to perform the canonicalization
package crypto

import (
	"github.com/gowebpki/jcs"
)

// CanonicalizeJSON converts JSON to canonical form per RFC 8785
// This ensures consistent hashing/signing of JSON documents
//
// If the input is not valid JSON, an error is returned (handled by jcs library).
func CanonicalizeJSON(jsonData []byte) ([]byte, error) {
	return jcs.Transform(jsonData)
}

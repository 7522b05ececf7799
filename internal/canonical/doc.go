// Package canonical provides the constrained value model and the RFC 8785
// canonical JSON encoding used to fingerprint the side-schema.
//
// Values are limited to null, string, int64, bool, array and object.
// There is no float type, so every encoding is byte-for-byte stable
// across runs and platforms. Strings are NFC normalized at the
// serialization boundary and object keys are ordered by UTF-16 code units.
package canonical

package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

const (
	derivedEventIDPrefix = "sha:"
	derivedEventIDLen    = 24
)

// CanonicalEventID deriva a identidade canônica de um evento. IDs naturais da
// plataforma têm preferência; sem um, o digest do payload bruto garante que
// redeliveries byte-idênticas colapsem na mesma chave de reivindicação. O
// prefixo distingue IDs derivados de IDs naturais.
func CanonicalEventID(explicit string, payload []byte) string {
	if explicit != "" {
		return explicit
	}
	sum := sha256.Sum256(payload)
	return derivedEventIDPrefix + hex.EncodeToString(sum[:])[:derivedEventIDLen]
}

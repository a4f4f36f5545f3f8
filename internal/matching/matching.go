// Package matching implements the matching function that derives a record hash
// from its nonce.
package matching

import (
	"lukechampine.com/blake3"

	"github.com/hupe1980/plotgen/internal/record"
)

// Compute returns BLAKE3-256 applied twice to nonce.
//
// Every table layer calls Compute on the same nonce, so records that share a
// nonce carry the same hash in every table.
func Compute(nonce record.Nonce) record.Hash {
	first := blake3.Sum256(nonce[:])
	return blake3.Sum256(first[:])
}

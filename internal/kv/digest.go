package kv

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/roach88/ledgerd/internal/ir"
)

// DomainEntry separates container entry hashes from every other hash.
const DomainEntry = "ledgerd/kv-entry/v1"

// Digest is an order-independent commitment to a multiset of entries: the
// sum modulo 2^256 of each entry's SHA-256. Adding and removing an entry
// costs one hash regardless of container size.
//
// Limbs are little-endian: d[0] holds the low 64 bits.
type Digest [4]uint64

// EntryDigest hashes one canonical entry.
func EntryDigest(entry ir.Value) Digest {
	h := sha256.New()
	h.Write([]byte(DomainEntry))
	h.Write([]byte{0x00})
	h.Write(ir.MustCanonical(entry))
	sum := h.Sum(nil)

	var d Digest
	for i := range d {
		d[i] = binary.BigEndian.Uint64(sum[24-8*i:])
	}
	return d
}

// Add folds x into d.
func (d *Digest) Add(x Digest) {
	var carry uint64
	for i := range d {
		d[i], carry = bits.Add64(d[i], x[i], carry)
	}
}

// Sub removes x from d.
func (d *Digest) Sub(x Digest) {
	var borrow uint64
	for i := range d {
		d[i], borrow = bits.Sub64(d[i], x[i], borrow)
	}
}

// String renders d as 64 hex digits, most significant first.
func (d Digest) String() string {
	return fmt.Sprintf("%016x%016x%016x%016x", d[3], d[2], d[1], d[0])
}

// Digester is a container that keeps a running Digest.
type Digester interface {
	Len() int
	Digest() Digest
}

// Summary renders a container's size and digest for a state commitment.
func Summary(c Digester) ir.Object {
	return ir.Obj(
		ir.O("len", ir.Int(c.Len())),
		ir.O("digest", ir.String(c.Digest().String())),
	)
}

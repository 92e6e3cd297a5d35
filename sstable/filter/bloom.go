package filter

import "github.com/spaolacci/murmur3"

// Policy is the pluggable interface a filter block builder/reader consumes,
// mirroring leveldb's FilterPolicy: a name identifying the on-disk encoding
// (persisted so a reader can refuse a filter built by an incompatible
// policy), a whole-filter builder, and a single-filter membership test.
type Policy interface {
	Name() string
	CreateFilter(keys [][]byte) []byte
	KeyMayMatch(key, filter []byte) bool
}

// bloomSeed is the hash seed leveldb's bloom filter policy uses, passed
// here as the seed of the murmur3 hash that stands in for leveldb's
// bespoke Hash().
const bloomSeed = 0xbc9f1d34

// BloomPolicy is a standard Bloom filter keyed on bitsPerKey, the same
// knob leveldb's NewBloomFilterPolicy exposes. It packs k (the number of
// probes, derived from bitsPerKey) into the last byte of the encoded
// filter so a reader never needs to be told it out of band.
type BloomPolicy struct {
	bitsPerKey int
	k          int
}

// NewBloomPolicy returns a policy targeting bitsPerKey bits of filter data
// per added key. k (the probe count) is derived as bitsPerKey*ln(2),
// clamped to [1, 30] as leveldb does to bound CreateFilter's cost.
func NewBloomPolicy(bitsPerKey int) *BloomPolicy {
	if bitsPerKey < 1 {
		bitsPerKey = 1
	}
	k := int(float64(bitsPerKey) * 0.69) // ln(2) ~= 0.69
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	return &BloomPolicy{bitsPerKey: bitsPerKey, k: k}
}

func (p *BloomPolicy) Name() string { return "leveldb.BuiltinBloomFilter" }

func bloomHash(key []byte) uint32 {
	return murmur3.Sum32WithSeed(key, bloomSeed)
}

// CreateFilter builds one Bloom filter over keys, sized to bitsPerKey *
// len(keys) bits rounded up to a whole byte, with a floor of 64 bits so a
// tiny key set doesn't collapse to a handful of bits. Each key is probed k
// times using the double-hashing trick (derive every probe from a single
// 32-bit hash by rotating it) instead of k independent hash functions.
func (p *BloomPolicy) CreateFilter(keys [][]byte) []byte {
	bits := len(keys) * p.bitsPerKey
	if bits < 64 {
		bits = 64
	}
	bytes := (bits + 7) / 8
	bits = bytes * 8

	filter := make([]byte, bytes+1)
	filter[bytes] = byte(p.k)

	for _, key := range keys {
		h := bloomHash(key)
		delta := (h >> 17) | (h << 15)
		for j := 0; j < p.k; j++ {
			bitpos := h % uint32(bits)
			filter[bitpos/8] |= 1 << (bitpos % 8)
			h += delta
		}
	}
	return filter
}

// KeyMayMatch tests filter (as produced by CreateFilter) for key. An
// empty filter (not even the trailing k byte) matches nothing and returns
// false; a filter holding only the k byte, or one whose k is above 30,
// fails open and returns true.
func (p *BloomPolicy) KeyMayMatch(key, filter []byte) bool {
	if len(filter) < 1 {
		return false
	}
	bytes := len(filter) - 1
	bits := bytes * 8
	if bits == 0 {
		return true
	}
	k := int(filter[bytes])
	if k > 30 {
		// Reserved for future encodings; fail open rather than reject.
		return true
	}

	h := bloomHash(key)
	delta := (h >> 17) | (h << 15)
	for j := 0; j < k; j++ {
		bitpos := h % uint32(bits)
		if filter[bitpos/8]&(1<<(bitpos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}

// Package discover maintains a cache of known section contacts organized as
// a Kademlia-style routing table over the XOR name space, so that a
// bootstrapping or relocating node can find elders close to a target name
// without depending on any single contact staying reachable.
package discover

import (
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/nkoteskey/routing/section"
	"github.com/nkoteskey/routing/xorspace"
)

// Config controls the behavior of the contact book.
type Config struct {
	// BucketSize is the maximum number of entries per k-bucket.
	BucketSize int

	// MaxTableSize caps the total number of contacts across all buckets.
	// 0 means unlimited (bounded only by BucketSize * xorspace.NameBits).
	MaxTableSize int

	// StaleTimeout is the maximum time a contact can go without being seen
	// before it is considered stale and eligible for eviction.
	StaleTimeout time.Duration

	// MaxFailCount is the number of consecutive failures before a contact
	// is removed from the book.
	MaxFailCount int

	// MaxReplacements is the maximum number of replacement entries per
	// bucket.
	MaxReplacements int
}

// DefaultConfig returns a Config with standard defaults.
func DefaultConfig() Config {
	return Config{
		BucketSize:      16,
		MaxTableSize:    0,
		StaleTimeout:    24 * time.Hour,
		MaxFailCount:    5,
		MaxReplacements: 10,
	}
}

func (c *Config) applyDefaults() {
	if c.BucketSize <= 0 {
		c.BucketSize = 16
	}
	if c.StaleTimeout <= 0 {
		c.StaleTimeout = 24 * time.Hour
	}
	if c.MaxFailCount <= 0 {
		c.MaxFailCount = 5
	}
	if c.MaxReplacements <= 0 {
		c.MaxReplacements = 10
	}
}

// Contact is a single known section member reachable as a bootstrap or
// relocation target.
type Contact struct {
	Name      xorspace.Name
	Addr      section.Addr
	LastSeen  time.Time
	FailCount int
}

type bucket struct {
	entries      []Contact
	replacements []Contact
}

// Book is a Kademlia-style routing table of section contacts, organized into
// xorspace.NameBits buckets indexed by XOR log distance from the local name.
type Book struct {
	mu      sync.RWMutex
	self    xorspace.Name
	buckets [xorspace.NameBits]*bucket
	config  Config
}

// NewBook creates a contact book centered on the local node's name.
func NewBook(self xorspace.Name, config Config) *Book {
	config.applyDefaults()
	b := &Book{self: self, config: config}
	for i := range b.buckets {
		b.buckets[i] = &bucket{}
	}
	return b
}

// bucketIndex returns the bucket index for name relative to self, or -1 if
// name equals self.
func (b *Book) bucketIndex(name xorspace.Name) int {
	shared := b.self.CommonPrefixLen(name)
	if shared >= xorspace.NameBits {
		return -1
	}
	return int(shared)
}

// Add records a contact, placing it in the bucket for its distance from
// self. If the bucket is full, the contact is placed in the replacement
// cache unless the bucket's tail entry is stale, in which case it is
// evicted in favor of the new contact. Returns true if the contact is now
// one of the book's active entries.
func (b *Book) Add(c Contact) bool {
	idx := b.bucketIndex(c.Name)
	if idx < 0 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bkt := b.buckets[idx]

	for i, e := range bkt.entries {
		if e.Name == c.Name {
			bkt.entries[i].LastSeen = c.LastSeen
			bkt.entries[i].FailCount = 0
			if c.Addr != "" {
				bkt.entries[i].Addr = c.Addr
			}
			return true
		}
	}

	if b.config.MaxTableSize > 0 && b.sizeLocked() >= b.config.MaxTableSize {
		if !b.evictStaleLocked() {
			b.addReplacementLocked(bkt, c)
			return false
		}
	}

	if len(bkt.entries) < b.config.BucketSize {
		bkt.entries = append(bkt.entries, c)
		return true
	}

	if b.isStaleLocked(bkt.entries[len(bkt.entries)-1]) {
		bkt.entries[len(bkt.entries)-1] = c
		return true
	}

	b.addReplacementLocked(bkt, c)
	return false
}

func (b *Book) addReplacementLocked(bkt *bucket, c Contact) {
	for i, r := range bkt.replacements {
		if r.Name == c.Name {
			bkt.replacements[i] = c
			return
		}
	}
	if len(bkt.replacements) < b.config.MaxReplacements {
		bkt.replacements = append(bkt.replacements, c)
	}
}

func (b *Book) isStaleLocked(c Contact) bool {
	if c.FailCount >= b.config.MaxFailCount {
		return true
	}
	if !c.LastSeen.IsZero() && time.Since(c.LastSeen) > b.config.StaleTimeout {
		return true
	}
	return false
}

func (b *Book) evictStaleLocked() bool {
	for _, bkt := range b.buckets {
		for i, e := range bkt.entries {
			if b.isStaleLocked(e) {
				bkt.entries = append(bkt.entries[:i], bkt.entries[i+1:]...)
				if len(bkt.replacements) > 0 {
					bkt.entries = append(bkt.entries, bkt.replacements[0])
					bkt.replacements = bkt.replacements[1:]
				}
				return true
			}
		}
	}
	return false
}

// Remove drops name from the book, promoting a replacement into its place
// if one is cached.
func (b *Book) Remove(name xorspace.Name) {
	idx := b.bucketIndex(name)
	if idx < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bkt := b.buckets[idx]
	for i, e := range bkt.entries {
		if e.Name == name {
			bkt.entries = append(bkt.entries[:i], bkt.entries[i+1:]...)
			if len(bkt.replacements) > 0 {
				bkt.entries = append(bkt.entries, bkt.replacements[0])
				bkt.replacements = bkt.replacements[1:]
			}
			return
		}
	}
	for i, r := range bkt.replacements {
		if r.Name == name {
			bkt.replacements = append(bkt.replacements[:i], bkt.replacements[i+1:]...)
			return
		}
	}
}

// RecordFailure increments name's failure count, dropping it (and promoting
// a replacement) once MaxFailCount is reached. Used when a join request or
// message send to this contact goes unanswered.
func (b *Book) RecordFailure(name xorspace.Name) {
	idx := b.bucketIndex(name)
	if idx < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bkt := b.buckets[idx]
	for i, e := range bkt.entries {
		if e.Name == name {
			bkt.entries[i].FailCount++
			if bkt.entries[i].FailCount >= b.config.MaxFailCount {
				bkt.entries = append(bkt.entries[:i], bkt.entries[i+1:]...)
				if len(bkt.replacements) > 0 {
					bkt.entries = append(bkt.entries, bkt.replacements[0])
					bkt.replacements = bkt.replacements[1:]
				}
			}
			return
		}
	}
}

// Get returns the recorded contact for name, if any.
func (b *Book) Get(name xorspace.Name) (Contact, bool) {
	idx := b.bucketIndex(name)
	if idx < 0 {
		return Contact{}, false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, e := range b.buckets[idx].entries {
		if e.Name == name {
			return e, true
		}
	}
	return Contact{}, false
}

// Closest returns up to count contacts closest to target by XOR distance,
// ascending.
func (b *Book) Closest(target xorspace.Name, count int) []Contact {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var all []Contact
	for _, bkt := range b.buckets {
		all = append(all, bkt.entries...)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Name.CloserTo(all[j].Name, target)
	})

	if len(all) > count {
		all = all[:count]
	}
	return all
}

// Size returns the total number of contacts across all buckets.
func (b *Book) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sizeLocked()
}

func (b *Book) sizeLocked() int {
	n := 0
	for _, bkt := range b.buckets {
		n += len(bkt.entries)
	}
	return n
}

// All returns a snapshot of every contact in the book.
func (b *Book) All() []Contact {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var all []Contact
	for _, bkt := range b.buckets {
		all = append(all, bkt.entries...)
	}
	return all
}

// RandomName returns a cryptographically random name falling into the
// given bucket index (i.e. sharing exactly bucketIndex leading bits with
// self), useful for generating a lookup target when refreshing a sparse
// bucket.
func (b *Book) RandomName(bucketIndex int) (xorspace.Name, error) {
	if bucketIndex < 0 || bucketIndex >= xorspace.NameBits {
		return b.self, nil
	}

	var random xorspace.Name
	if _, err := rand.Read(random[:]); err != nil {
		return xorspace.Name{}, err
	}

	out := b.self.ClearFrom(uint(bucketIndex))
	out = out.WithBit(uint(bucketIndex), !b.self.Bit(uint(bucketIndex)))

	for i := uint(bucketIndex + 1); i < xorspace.NameBits; i++ {
		out = out.WithBit(i, random.Bit(i))
	}
	return out, nil
}

package discover

import (
	"testing"
	"time"

	"github.com/nkoteskey/routing/section"
	"github.com/nkoteskey/routing/xorspace"
)

func nameWithByte(b byte) xorspace.Name {
	var n xorspace.Name
	n[0] = b
	return n
}

func TestBook_AddAndGet(t *testing.T) {
	self := xorspace.Name{}
	book := NewBook(self, DefaultConfig())

	c := Contact{Name: nameWithByte(0x80), Addr: section.Addr("peer-a"), LastSeen: time.Now()}
	if !book.Add(c) {
		t.Fatal("expected first contact to be added directly")
	}

	got, ok := book.Get(c.Name)
	if !ok {
		t.Fatal("expected contact to be retrievable")
	}
	if got.Addr != c.Addr {
		t.Fatalf("expected addr %q, got %q", c.Addr, got.Addr)
	}
}

func TestBook_Add_SelfRejected(t *testing.T) {
	self := xorspace.Name{}
	book := NewBook(self, DefaultConfig())

	if book.Add(Contact{Name: self, Addr: section.Addr("me")}) {
		t.Fatal("expected self to be rejected")
	}
	if book.Size() != 0 {
		t.Fatalf("expected empty book, got size %d", book.Size())
	}
}

func TestBook_Add_UpdatesExisting(t *testing.T) {
	self := xorspace.Name{}
	book := NewBook(self, DefaultConfig())

	name := nameWithByte(0x40)
	book.Add(Contact{Name: name, Addr: section.Addr("old")})
	book.Add(Contact{Name: name, Addr: section.Addr("new")})

	if book.Size() != 1 {
		t.Fatalf("expected a single entry after update, got %d", book.Size())
	}
	got, _ := book.Get(name)
	if got.Addr != "new" {
		t.Fatalf("expected updated addr, got %q", got.Addr)
	}
}

func TestBook_RecordFailure_EvictsAfterThreshold(t *testing.T) {
	self := xorspace.Name{}
	cfg := DefaultConfig()
	cfg.MaxFailCount = 2
	book := NewBook(self, cfg)

	name := nameWithByte(0x01)
	book.Add(Contact{Name: name, Addr: section.Addr("flaky")})

	book.RecordFailure(name)
	if _, ok := book.Get(name); !ok {
		t.Fatal("expected contact to survive one failure")
	}

	book.RecordFailure(name)
	if _, ok := book.Get(name); ok {
		t.Fatal("expected contact to be evicted after MaxFailCount failures")
	}
}

func TestBook_Remove(t *testing.T) {
	self := xorspace.Name{}
	book := NewBook(self, DefaultConfig())

	name := nameWithByte(0x10)
	book.Add(Contact{Name: name, Addr: section.Addr("gone-soon")})
	book.Remove(name)

	if _, ok := book.Get(name); ok {
		t.Fatal("expected contact to be removed")
	}
}

func TestBook_Closest_OrdersByXorDistance(t *testing.T) {
	self := xorspace.Name{}
	book := NewBook(self, DefaultConfig())

	near := nameWithByte(0x01)
	mid := nameWithByte(0x0F)
	far := nameWithByte(0xFF)
	book.Add(Contact{Name: far, Addr: section.Addr("far")})
	book.Add(Contact{Name: near, Addr: section.Addr("near")})
	book.Add(Contact{Name: mid, Addr: section.Addr("mid")})

	target := xorspace.Name{}
	closest := book.Closest(target, 2)
	if len(closest) != 2 {
		t.Fatalf("expected 2 results, got %d", len(closest))
	}
	if closest[0].Addr != "near" {
		t.Fatalf("expected nearest contact first, got %q", closest[0].Addr)
	}
	if closest[1].Addr != "mid" {
		t.Fatalf("expected second-nearest contact second, got %q", closest[1].Addr)
	}
}

func TestBook_RandomName_SharesBucketPrefix(t *testing.T) {
	self := xorspace.Name{}
	book := NewBook(self, DefaultConfig())

	for _, idx := range []int{0, 7, 64, 255} {
		name, err := book.RandomName(idx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := self.CommonPrefixLen(name); got != uint(idx) {
			t.Fatalf("bucket %d: expected common prefix length %d, got %d", idx, idx, got)
		}
	}
}

func TestBook_All_ReflectsAdds(t *testing.T) {
	self := xorspace.Name{}
	book := NewBook(self, DefaultConfig())

	book.Add(Contact{Name: nameWithByte(0x01), Addr: section.Addr("a")})
	book.Add(Contact{Name: nameWithByte(0x02), Addr: section.Addr("b")})

	all := book.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 contacts, got %d", len(all))
	}
}

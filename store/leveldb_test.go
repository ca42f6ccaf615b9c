package store

import (
	"math/big"
	"testing"

	"github.com/nkoteskey/routing/bls"
	"github.com/nkoteskey/routing/section"
	"github.com/nkoteskey/routing/xorspace"
)

func testElder(seed byte) section.P2pNode {
	var name xorspace.Name
	name[0] = seed
	return section.P2pNode{PublicId: section.PublicId{Name: name}, Addr: section.Addr("elder")}
}

func testState(t *testing.T) *section.SharedState {
	t.Helper()
	elder := testElder(1)
	ourPrefix := xorspace.NewPrefix(1, elder.PublicId.Name)
	info := section.NewEldersInfo(ourPrefix, 1, []section.MemberInfo{section.NewMemberInfo(elder)})
	secret := big.NewInt(7)
	key := bls.PubkeyFromSecret(secret)
	state := section.NewSharedState(info, key)
	state.OurMembers.Add(section.NewMemberInfo(elder))
	return state
}

func TestStore_SaveAndLoadState_RoundTrips(t *testing.T) {
	st, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer st.Close()

	state := testState(t)
	if err := st.SaveState(state); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	loaded, err := st.LoadState()
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}

	if loaded.OurPrefix() != state.OurPrefix() {
		t.Fatalf("expected prefix %v, got %v", state.OurPrefix(), loaded.OurPrefix())
	}
	if loaded.OurHistory.LastKey() != state.OurHistory.LastKey() {
		t.Fatal("expected proof chain head to round-trip")
	}
	if loaded.HandledGenesisEvent {
		t.Fatal("expected HandledGenesisEvent to reset to false after load")
	}
	if len(loaded.OurMembers.All()) != len(state.OurMembers.All()) {
		t.Fatalf("expected %d members, got %d", len(state.OurMembers.All()), len(loaded.OurMembers.All()))
	}
}

func TestStore_LoadState_NoneSaved(t *testing.T) {
	st, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer st.Close()

	if _, err := st.LoadState(); err != ErrNoState {
		t.Fatalf("expected ErrNoState, got %v", err)
	}
}

func TestStore_SaveState_PreservesNeighbourKeyAndKnowledge(t *testing.T) {
	st, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer st.Close()

	state := testState(t)

	neighbourElder := testElder(0x80)
	neighbourInfo := section.NewEldersInfo(
		xorspace.NewPrefix(1, neighbourElder.PublicId.Name),
		1,
		[]section.MemberInfo{section.NewMemberInfo(neighbourElder)},
	)
	state.Sections.AddNeighbour(neighbourInfo)
	var neighbourKey [48]byte
	neighbourKey[0] = 0xCD
	state.Sections.UpdateKeys(neighbourInfo.Prefix, neighbourKey, 3)
	state.Sections.SetKnowledge(neighbourInfo.Prefix, 9)

	if err := st.SaveState(state); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	loaded, err := st.LoadState()
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}

	rec, ok := loaded.Sections.KeyRecordFor(neighbourInfo.Prefix)
	if !ok {
		t.Fatal("expected neighbour key to round-trip")
	}
	if rec.Key != neighbourKey || rec.Index != 3 {
		t.Fatalf("expected key record {%v,3}, got %+v", neighbourKey, rec)
	}
	if got := loaded.Sections.KnowledgeBySection(neighbourInfo.Prefix); got != 9 {
		t.Fatalf("expected knowledge 9, got %d", got)
	}
}

func TestStore_ContactPersistence(t *testing.T) {
	st, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer st.Close()

	var nameA, nameB xorspace.Name
	nameA[0] = 0x01
	nameB[0] = 0x02

	if err := st.SaveContact(nameA, section.Addr("addr-a")); err != nil {
		t.Fatalf("SaveContact: %v", err)
	}
	if err := st.SaveContact(nameB, section.Addr("addr-b")); err != nil {
		t.Fatalf("SaveContact: %v", err)
	}

	contacts, err := st.LoadContacts()
	if err != nil {
		t.Fatalf("LoadContacts: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("expected 2 contacts, got %d", len(contacts))
	}
	if contacts[nameA] != "addr-a" || contacts[nameB] != "addr-b" {
		t.Fatalf("unexpected contacts: %+v", contacts)
	}
}

package protocol

import "testing"

func TestSubscribeAndMembers(t *testing.T) {
	b := NewBroadcaster()
	a, c := &Connection{}, &Connection{}
	b.Subscribe("board1", a)
	b.Subscribe("board1", c)

	members := b.Members("board1")
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2", len(members))
	}
}

func TestUnsubscribeRemovesMember(t *testing.T) {
	b := NewBroadcaster()
	a, c := &Connection{}, &Connection{}
	b.Subscribe("board1", a)
	b.Subscribe("board1", c)

	b.Unsubscribe("board1", a)
	members := b.Members("board1")
	if len(members) != 1 || members[0] != c {
		t.Fatalf("expected only c to remain, got %v", members)
	}
}

func TestUnsubscribeLastMemberDropsBoard(t *testing.T) {
	b := NewBroadcaster()
	a := &Connection{}
	b.Subscribe("board1", a)
	b.Unsubscribe("board1", a)

	if _, ok := b.subs["board1"]; ok {
		t.Fatalf("expected board1's subscriber set to be removed once empty")
	}
}

func TestMembersOfUnknownBoardIsEmpty(t *testing.T) {
	b := NewBroadcaster()
	if members := b.Members("nope"); len(members) != 0 {
		t.Fatalf("expected no members, got %v", members)
	}
}

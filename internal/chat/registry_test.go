package chat

import (
	"strconv"
	"sync"
	"testing"
)

func TestRegistry_JoinBroadcastsToRoomIncludingJoiner(t *testing.T) {
	registry := NewRegistry()
	alice := NewSession(nil)
	bob := NewSession(nil)

	registry.Join(alice, "alice", "general")
	env := nextEvent(t, alice)
	if env.Type != EventUserJoined {
		t.Fatalf("Expected user_joined, got %s", env.Type)
	}

	registry.Join(bob, "bob", "general")

	var payload UserJoinedPayload
	decodeData(t, nextEvent(t, alice), &payload)
	if payload.Username != "bob" || payload.Room != "general" {
		t.Errorf("Unexpected user_joined payload: %+v", payload)
	}

	// The joiner receives its own join event.
	decodeData(t, nextEvent(t, bob), &payload)
	if payload.Username != "bob" {
		t.Errorf("Expected joiner to see its own join, got %+v", payload)
	}

	if got := registry.MemberCount("general"); got != 2 {
		t.Errorf("Expected 2 members, got %d", got)
	}
}

func TestRegistry_LeaveNotifiesRemainingOnly(t *testing.T) {
	registry := NewRegistry()
	alice := NewSession(nil)
	bob := NewSession(nil)

	registry.Join(alice, "alice", "general")
	registry.Join(bob, "bob", "general")
	drainEvents(alice)
	drainEvents(bob)

	registry.Leave(bob, "bob", "general")

	env := nextEvent(t, alice)
	if env.Type != EventUserLeft {
		t.Fatalf("Expected user_left, got %s", env.Type)
	}
	var payload UserLeftPayload
	decodeData(t, env, &payload)
	if payload.Username != "bob" || payload.Room != "general" {
		t.Errorf("Unexpected user_left payload: %+v", payload)
	}

	// The leaver is out of the room and receives nothing.
	requireNoEvent(t, bob)

	if got := registry.MemberCount("general"); got != 1 {
		t.Errorf("Expected 1 member, got %d", got)
	}
}

func TestRegistry_LeaveUnjoinedRoomIsNoop(t *testing.T) {
	registry := NewRegistry()
	alice := NewSession(nil)
	bob := NewSession(nil)

	registry.Join(alice, "alice", "general")
	drainEvents(alice)

	registry.Leave(bob, "bob", "general")
	registry.Leave(bob, "bob", "nowhere")

	requireNoEvent(t, alice)
	requireNoEvent(t, bob)
}

func TestRegistry_DisconnectLeavesEveryRoomOnce(t *testing.T) {
	registry := NewRegistry()
	alice := NewSession(nil)
	bobGeneral := NewSession(nil)
	bobRandom := NewSession(nil)

	registry.Join(bobGeneral, "bob", "general")
	registry.Join(bobRandom, "carol", "random")
	registry.Join(alice, "alice", "general")
	registry.Join(alice, "alice", "random")
	drainEvents(alice)
	drainEvents(bobGeneral)
	drainEvents(bobRandom)

	left := registry.Disconnect(alice)
	if len(left) != 2 {
		t.Fatalf("Expected 2 rooms left, got %v", left)
	}

	for _, sess := range []*Session{bobGeneral, bobRandom} {
		env := nextEvent(t, sess)
		if env.Type != EventUserLeft {
			t.Fatalf("Expected user_left, got %s", env.Type)
		}
		var payload UserLeftPayload
		decodeData(t, env, &payload)
		if payload.Username != "alice" {
			t.Errorf("Expected user_left for alice, got %+v", payload)
		}
		// Exactly one per room.
		requireNoEvent(t, sess)
	}

	// The disconnected session no longer receives broadcasts.
	registry.Broadcast("general", EventUserJoined, UserJoinedPayload{Username: "dave", Room: "general"})
	requireNoEvent(t, alice)

	if rooms := registry.Rooms(alice); len(rooms) != 0 {
		t.Errorf("Expected no rooms for disconnected session, got %v", rooms)
	}
}

func TestRegistry_ConcurrentJoinLeaveDisconnect(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := NewSession(nil)
			room := "room-" + strconv.Itoa(i%5)
			registry.Join(sess, "user-"+strconv.Itoa(i), room)
			registry.Broadcast(room, EventUserJoined, UserJoinedPayload{Username: "x", Room: room})
			if i%2 == 0 {
				registry.Leave(sess, "user-"+strconv.Itoa(i), room)
			} else {
				registry.Disconnect(sess)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		room := "room-" + strconv.Itoa(i)
		if got := registry.MemberCount(room); got != 0 {
			t.Errorf("Expected empty %s, got %d members", room, got)
		}
	}
}

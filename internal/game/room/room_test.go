package room

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type fakeOccupant struct {
	mu     sync.Mutex
	pushed [][]byte
	closed bool
}

func (f *fakeOccupant) Push(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, data)
	return nil
}

func (f *fakeOccupant) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestTypeCapacity(t *testing.T) {
	assert.Equal(t, 2, TypeDuo.Capacity())
	assert.Equal(t, 3, TypeTrio.Capacity())
	assert.Equal(t, 2, Type("bogus").Capacity())
}

func TestJoinAssignsSmallestFreeID(t *testing.T) {
	r := New("TEST01", TypeTrio)

	id1, err := r.Join(&fakeOccupant{})
	require.NoError(t, err)
	assert.Equal(t, 1, id1)

	id2, err := r.Join(&fakeOccupant{})
	require.NoError(t, err)
	assert.Equal(t, 2, id2)

	// Freeing id 1 makes it the next assignment again.
	r.Leave(1)
	id3, err := r.Join(&fakeOccupant{})
	require.NoError(t, err)
	assert.Equal(t, 1, id3)
}

func TestJoinFullRoom(t *testing.T) {
	r := New("TEST01", TypeDuo)
	_, err := r.Join(&fakeOccupant{})
	require.NoError(t, err)
	_, err = r.Join(&fakeOccupant{})
	require.NoError(t, err)

	_, err = r.Join(&fakeOccupant{})
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Equal(t, 2, r.OccupantCount(), "failed join must not mutate the occupant set")
}

func TestFirstJoinerBecomesHost(t *testing.T) {
	r := New("TEST01", TypeDuo)
	id, err := r.Join(&fakeOccupant{})
	require.NoError(t, err)
	assert.Equal(t, id, r.HostID())
}

func TestLeaveMigratesHostToSmallestID(t *testing.T) {
	r := New("TEST01", TypeTrio)
	_, _ = r.Join(&fakeOccupant{}) // 1, host
	_, _ = r.Join(&fakeOccupant{}) // 2
	_, _ = r.Join(&fakeOccupant{}) // 3

	empty := r.Leave(1)
	assert.False(t, empty)
	assert.Equal(t, 2, r.HostID())
}

func TestLeaveNonHostKeepsHost(t *testing.T) {
	r := New("TEST01", TypeTrio)
	_, _ = r.Join(&fakeOccupant{}) // 1, host
	_, _ = r.Join(&fakeOccupant{}) // 2

	r.Leave(2)
	assert.Equal(t, 1, r.HostID())
}

func TestLeaveClearsAllPlayerState(t *testing.T) {
	r := New("TEST01", TypeDuo)
	id, _ := r.Join(&fakeOccupant{})
	require.NoError(t, r.SelectSeat(id, 1))
	_, err := r.ToggleReady(id, true)
	require.NoError(t, err)
	r.SetName(id, "Alice")
	r.MarkSetupComplete(id)

	empty := r.Leave(id)
	assert.True(t, empty)

	st := r.Snapshot()
	assert.Empty(t, st.Seats)
	assert.Empty(t, st.Ready)
	assert.Empty(t, st.Names)
	assert.Equal(t, 0, st.HostID)
}

func TestLeaveUnknownPlayerIsNoOp(t *testing.T) {
	r := New("TEST01", TypeDuo)
	_, _ = r.Join(&fakeOccupant{})
	empty := r.Leave(99)
	assert.False(t, empty)
	assert.Equal(t, 1, r.OccupantCount())
}

func TestSelectSeat(t *testing.T) {
	r := New("TEST01", TypeDuo)
	a, _ := r.Join(&fakeOccupant{})
	b, _ := r.Join(&fakeOccupant{})

	require.NoError(t, r.SelectSeat(a, 1))
	require.NoError(t, r.SelectSeat(b, 2))

	st := r.Snapshot()
	assert.Equal(t, 1, st.Seats[a])
	assert.Equal(t, 2, st.Seats[b])
}

func TestSelectSeatTaken(t *testing.T) {
	r := New("TEST01", TypeDuo)
	a, _ := r.Join(&fakeOccupant{})
	b, _ := r.Join(&fakeOccupant{})
	require.NoError(t, r.SelectSeat(a, 1))

	err := r.SelectSeat(b, 1)
	assert.ErrorIs(t, err, ErrSeatTaken)

	st := r.Snapshot()
	_, seated := st.Seats[b]
	assert.False(t, seated)
}

func TestSelectSeatToggleOffClearsReadiness(t *testing.T) {
	r := New("TEST01", TypeDuo)
	a, _ := r.Join(&fakeOccupant{})
	b, _ := r.Join(&fakeOccupant{})
	require.NoError(t, r.SelectSeat(a, 1))
	require.NoError(t, r.SelectSeat(b, 2))
	_, err := r.ToggleReady(a, true)
	require.NoError(t, err)
	_, err = r.ToggleReady(b, true)
	require.NoError(t, err)

	// Re-selecting the held seat releases it and clears readiness for
	// that player only.
	require.NoError(t, r.SelectSeat(a, 1))

	st := r.Snapshot()
	_, seated := st.Seats[a]
	assert.False(t, seated)
	_, ready := st.Ready[a]
	assert.False(t, ready)
	assert.True(t, st.Ready[b])
	assert.Equal(t, 2, st.Seats[b])
}

func TestSelectSeatMoveResetsReadiness(t *testing.T) {
	r := New("TEST01", TypeDuo)
	a, _ := r.Join(&fakeOccupant{})
	require.NoError(t, r.SelectSeat(a, 1))
	_, err := r.ToggleReady(a, true)
	require.NoError(t, err)

	require.NoError(t, r.SelectSeat(a, 2))
	st := r.Snapshot()
	assert.Equal(t, 2, st.Seats[a])
	_, ready := st.Ready[a]
	assert.False(t, ready)
}

func TestSelectSeatNotJoined(t *testing.T) {
	r := New("TEST01", TypeDuo)
	assert.ErrorIs(t, r.SelectSeat(5, 1), ErrNotJoined)
}

func TestToggleReadyRequiresSeat(t *testing.T) {
	r := New("TEST01", TypeDuo)
	a, _ := r.Join(&fakeOccupant{})

	_, err := r.ToggleReady(a, true)
	assert.ErrorIs(t, err, ErrSeatRequired)
	assert.Empty(t, r.Snapshot().Ready)
}

func TestAllReadyGate(t *testing.T) {
	r := New("TEST01", TypeDuo)
	a, _ := r.Join(&fakeOccupant{})
	b, _ := r.Join(&fakeOccupant{})
	require.NoError(t, r.SelectSeat(a, 1))
	require.NoError(t, r.SelectSeat(b, 2))

	allReady, err := r.ToggleReady(a, true)
	require.NoError(t, err)
	assert.False(t, allReady)

	allReady, err = r.ToggleReady(b, true)
	require.NoError(t, err)
	assert.True(t, allReady)

	// Flipping one occupant back immediately breaks the gate.
	allReady, err = r.ToggleReady(a, false)
	require.NoError(t, err)
	assert.False(t, allReady)
	assert.False(t, r.AllReady())
}

func TestAllReadyIgnoresThirdSeat(t *testing.T) {
	r := New("TEST01", TypeTrio)
	a, _ := r.Join(&fakeOccupant{})
	b, _ := r.Join(&fakeOccupant{})
	c, _ := r.Join(&fakeOccupant{})
	require.NoError(t, r.SelectSeat(a, 1))
	require.NoError(t, r.SelectSeat(b, 2))
	require.NoError(t, r.SelectSeat(c, 3))

	_, err := r.ToggleReady(a, true)
	require.NoError(t, err)
	allReady, err := r.ToggleReady(b, true)
	require.NoError(t, err)

	// Seat 3 never joins the gate: both combat seats ready suffices.
	assert.True(t, allReady)
}

func TestStartGameIsTerminal(t *testing.T) {
	r := New("TEST01", TypeDuo)
	assert.False(t, r.Started())
	r.StartGame()
	assert.True(t, r.Started())
	r.StartGame()
	assert.True(t, r.Started())
}

func TestMarkSetupCompleteFiresOnce(t *testing.T) {
	r := New("TEST01", TypeDuo)
	a, _ := r.Join(&fakeOccupant{})
	b, _ := r.Join(&fakeOccupant{})
	require.NoError(t, r.SelectSeat(a, 1))
	require.NoError(t, r.SelectSeat(b, 2))

	assert.False(t, r.MarkSetupComplete(a))
	assert.True(t, r.MarkSetupComplete(b))

	// Flags stay true; the crossing must not re-fire.
	assert.False(t, r.MarkSetupComplete(a))
	assert.False(t, r.MarkSetupComplete(b))
}

func TestRecipientsExcludes(t *testing.T) {
	r := New("TEST01", TypeTrio)
	a, _ := r.Join(&fakeOccupant{})
	_, _ = r.Join(&fakeOccupant{})
	_, _ = r.Join(&fakeOccupant{})

	assert.Len(t, r.Recipients(), 3)
	assert.Len(t, r.Recipients(a), 2)
}

func TestSnapshotIsACopy(t *testing.T) {
	r := New("TEST01", TypeDuo)
	a, _ := r.Join(&fakeOccupant{})
	require.NoError(t, r.SelectSeat(a, 1))

	st := r.Snapshot()
	st.Seats[a] = 99
	assert.Equal(t, 1, r.Snapshot().Seats[a])
}

func TestConcurrentSeatContention(t *testing.T) {
	r := New("TEST01", TypeTrio)
	ids := make([]int, 3)
	for i := range ids {
		id, err := r.Join(&fakeOccupant{})
		require.NoError(t, err)
		ids[i] = id
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for seat := 1; seat <= 3; seat++ {
			wg.Add(1)
			go func(id, seat int) {
				defer wg.Done()
				_ = r.SelectSeat(id, seat)
			}(id, seat)
		}
	}
	wg.Wait()

	seen := make(map[int]int)
	for id, seat := range r.Snapshot().Seats {
		if prev, dup := seen[seat]; dup {
			t.Fatalf("seat %d held by players %d and %d", seat, prev, id)
		}
		seen[seat] = id
	}
}

func TestPropertySeatsPairwiseDistinct(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := New("PROP01", TypeTrio)
		joined := make(map[int]bool)

		numOps := rapid.IntRange(1, 60).Draw(t, "num_ops")
		for i := 0; i < numOps; i++ {
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				if id, err := r.Join(&fakeOccupant{}); err == nil {
					joined[id] = true
				}
			case 1:
				id := rapid.IntRange(1, 4).Draw(t, "leave_id")
				r.Leave(id)
				delete(joined, id)
			case 2:
				id := rapid.IntRange(1, 4).Draw(t, "seat_player")
				seat := rapid.IntRange(1, 3).Draw(t, "seat_num")
				_ = r.SelectSeat(id, seat)
			case 3:
				id := rapid.IntRange(1, 4).Draw(t, "ready_player")
				_, _ = r.ToggleReady(id, rapid.Bool().Draw(t, "ready"))
			}

			st := r.Snapshot()
			seen := make(map[int]bool)
			for pid, seat := range st.Seats {
				if seen[seat] {
					t.Fatalf("after op %d: duplicate seat %d", i, seat)
				}
				seen[seat] = true
				if !joined[pid] {
					t.Fatalf("after op %d: seated player %d has no connection", i, pid)
				}
			}
		}
	})
}

func TestPropertyHostAlwaysConnected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := New("PROP02", TypeTrio)
		connected := make(map[int]bool)

		numOps := rapid.IntRange(1, 40).Draw(t, "num_ops")
		for i := 0; i < numOps; i++ {
			if rapid.Bool().Draw(t, "join") {
				if id, err := r.Join(&fakeOccupant{}); err == nil {
					connected[id] = true
				}
			} else {
				id := rapid.IntRange(1, 4).Draw(t, "leave_id")
				r.Leave(id)
				delete(connected, id)
			}

			host := r.HostID()
			if len(connected) == 0 {
				continue
			}
			if !connected[host] {
				t.Fatalf("after op %d: host %d is not connected (connected: %v)", i, host, connected)
			}
		}
	})
}

func TestScenarioFullLobbyFlow(t *testing.T) {
	// create → A joins (1) → B joins (2) → seats → both ready → both
	// setup-complete, gate fires once.
	r := New("GAME01", TypeDuo)

	a, err := r.Join(&fakeOccupant{})
	require.NoError(t, err)
	require.Equal(t, 1, a)

	b, err := r.Join(&fakeOccupant{})
	require.NoError(t, err)
	require.Equal(t, 2, b)

	require.NoError(t, r.SelectSeat(a, 1))
	require.NoError(t, r.SelectSeat(b, 2))

	_, err = r.ToggleReady(a, true)
	require.NoError(t, err)
	allReady, err := r.ToggleReady(b, true)
	require.NoError(t, err)
	assert.True(t, allReady)

	r.StartGame()
	assert.False(t, r.MarkSetupComplete(a))
	assert.True(t, r.MarkSetupComplete(b))
}

func BenchmarkSnapshot(b *testing.B) {
	r := New("BENCH1", TypeTrio)
	for i := 0; i < 3; i++ {
		id, _ := r.Join(&fakeOccupant{})
		_ = r.SelectSeat(id, i+1)
		r.SetName(id, fmt.Sprintf("Player%d", id))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Snapshot()
	}
}

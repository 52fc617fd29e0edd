package chat

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func turnAt(id string, role Role, sec int64) Turn {
	return Turn{ID: id, Role: role, Content: "content " + id, CreatedAt: time.Unix(sec, 0)}
}

func ids(turns []Turn) []string {
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.ID)
	}
	return out
}

func TestTranscriptAppendIsIdempotent(t *testing.T) {
	tr := NewTranscript()

	turn := turnAt("a", RoleUser, 1)
	assert.True(t, tr.Append(turn))
	assert.False(t, tr.Append(turn))

	require.Len(t, tr.Snapshot(), 1)
	assert.Equal(t, "a", tr.Snapshot()[0].ID)
}

func TestTranscriptLoadSortsAndDropsPending(t *testing.T) {
	tr := NewTranscript()
	tr.Append(Turn{ID: "tmp", Role: RoleUser, Pending: true})

	tr.Load([]Turn{
		turnAt("c", RoleUser, 3),
		turnAt("a", RoleUser, 1),
		turnAt("b", RoleAssistant, 2),
		turnAt("b2", RoleAssistant, 2),
	})

	assert.Equal(t, []string{"a", "b", "b2", "c"}, ids(tr.Snapshot()))
	for _, turn := range tr.Snapshot() {
		assert.False(t, turn.Pending)
	}
}

func TestTranscriptReconcileKeepsPosition(t *testing.T) {
	tr := NewTranscript()
	tr.Append(turnAt("a", RoleUser, 1))
	tr.Append(Turn{ID: "tmp", Role: RoleUser, Content: "hi", Pending: true})

	ok := tr.Reconcile("tmp", Turn{ID: "msg-9", Role: RoleUser, Content: "hi", CreatedAt: time.Unix(5, 0)})
	require.True(t, ok)

	snap := tr.Snapshot()
	assert.Equal(t, []string{"a", "msg-9"}, ids(snap))
	assert.False(t, snap[1].Pending)
	assert.Equal(t, time.Unix(5, 0), snap[1].CreatedAt)

	assert.False(t, tr.Reconcile("tmp", Turn{ID: "other"}))
}

func TestTranscriptReconcileDoesNotDuplicate(t *testing.T) {
	tr := NewTranscript()
	tr.Append(Turn{ID: "tmp", Pending: true})
	tr.Append(Turn{ID: "msg-1"})

	require.True(t, tr.Reconcile("tmp", Turn{ID: "msg-1"}))
	assert.Equal(t, []string{"msg-1"}, ids(tr.Snapshot()))
}

func TestTranscriptDiscardAndClear(t *testing.T) {
	tr := NewTranscript()
	tr.Append(turnAt("a", RoleUser, 1))
	tr.Append(turnAt("b", RoleAssistant, 2))

	assert.True(t, tr.Discard("a"))
	assert.False(t, tr.Discard("a"))
	assert.Equal(t, []string{"b"}, ids(tr.Snapshot()))

	tr.Clear()
	assert.Empty(t, tr.Snapshot())
	assert.Equal(t, 0, tr.Len())
}

func TestTranscriptSnapshotIsStable(t *testing.T) {
	tr := NewTranscript()
	tr.Append(turnAt("a", RoleUser, 1))
	snap := tr.Snapshot()

	tr.Append(turnAt("b", RoleAssistant, 2))
	tr.Discard("a")

	assert.Equal(t, []string{"a"}, ids(snap))
}

func TestTranscriptConcurrentAppends(t *testing.T) {
	tr := NewTranscript()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// every id is appended twice
			turn := turnAt(fmt.Sprintf("t%d", i%25), RoleUser, int64(i))
			tr.Append(turn)
			_ = tr.Snapshot()
		}(i)
	}
	wg.Wait()

	assert.Len(t, tr.Snapshot(), 25)
}

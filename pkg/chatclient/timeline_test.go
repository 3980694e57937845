package chatclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(id, key string, offset time.Duration) Message {
	return Message{
		ID:               id,
		ChatID:           "c1",
		Sender:           "u1",
		Text:             "text " + id,
		ClientMessageKey: key,
		CreatedAt:        base.Add(offset),
	}
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message.ID
		if out[i] == "" {
			out[i] = "key:" + e.Message.ClientMessageKey
		}
	}
	return out
}

func TestTimeline_OptimisticSendAndEchoCollapse(t *testing.T) {
	tl := NewTimeline()

	require.True(t, tl.AddPending(Message{ChatID: "c1", Sender: "u1", Text: "hi", ClientMessageKey: "k1", CreatedAt: base}))
	assert.False(t, tl.AddPending(Message{ClientMessageKey: "k1"}))
	assert.True(t, tl.HasPending("k1"))

	require.True(t, tl.ApplyBroadcast(msg("m1", "k1", time.Second)))
	assert.False(t, tl.ApplyBroadcast(msg("m1", "k1", time.Second)))

	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, Confirmed, entries[0].State)
	assert.Equal(t, "m1", entries[0].Message.ID)
	assert.False(t, tl.HasPending("k1"))
}

func TestTimeline_BroadcastBeforeHistory(t *testing.T) {
	tl := NewTimeline()

	require.True(t, tl.ApplyBroadcast(msg("m3", "k3", 3*time.Second)))

	added := tl.ApplyHistory([]Message{
		msg("m1", "k1", time.Second),
		msg("m2", "k2", 2*time.Second),
		msg("m3", "k3", 3*time.Second),
	})
	assert.Equal(t, 2, added)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(tl.Entries()))
}

func TestTimeline_OrdersByCreatedAtThenID(t *testing.T) {
	tl := NewTimeline()

	tl.ApplyBroadcast(msg("b", "", 2*time.Second))
	tl.ApplyBroadcast(msg("c", "", time.Second))
	tl.ApplyBroadcast(msg("a", "", 2*time.Second))

	assert.Equal(t, []string{"c", "a", "b"}, ids(tl.Entries()))
}

func TestTimeline_PendingFollowConfirmed(t *testing.T) {
	tl := NewTimeline()

	tl.AddPending(Message{ClientMessageKey: "p1", CreatedAt: base})
	tl.AddPending(Message{ClientMessageKey: "p2", CreatedAt: base})
	tl.ApplyBroadcast(msg("m1", "", 10*time.Second))

	entries := tl.Entries()
	assert.Equal(t, []string{"m1", "key:p1", "key:p2"}, ids(entries))
	assert.Equal(t, Pending, entries[1].State)
}

func TestTimeline_RejectKeepsEntryOutOfConfirmed(t *testing.T) {
	tl := NewTimeline()

	tl.AddPending(Message{ClientMessageKey: "k1", Text: "spam"})
	require.True(t, tl.Reject("k1", "slow down"))
	assert.False(t, tl.Reject("k1", "again"))
	assert.False(t, tl.Reject("unknown", "x"))

	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, Rejected, entries[0].State)
	assert.Equal(t, "slow down", entries[0].Reason)
	assert.Equal(t, "rejected", entries[0].State.String())

	tl.ApplyBroadcast(msg("m2", "other", time.Second))
	entries = tl.Entries()
	assert.Equal(t, []string{"m2", "key:k1"}, ids(entries))
	assert.Equal(t, Confirmed, entries[0].State)
}

func TestTimeline_IgnoresMessagesWithoutID(t *testing.T) {
	tl := NewTimeline()
	assert.False(t, tl.ApplyBroadcast(Message{Text: "no id"}))
	assert.Equal(t, 0, tl.Len())
}

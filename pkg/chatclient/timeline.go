package chatclient

import (
	"sort"
	"sync"
)

// EntryState tracks where a timeline entry is in its delivery.
type EntryState int

const (
	Pending EntryState = iota
	Confirmed
	Rejected
)

func (s EntryState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Entry is a message as the local user sees it. Reason is set on rejected
// entries.
type Entry struct {
	Message Message
	State   EntryState
	Reason  string
}

// Timeline is the local message list of one chat. Confirmed entries are
// ordered by (createdAt, id); pending and rejected entries follow in send
// order. An entry is keyed by its clientMessageKey until the server id is
// known, so a send and its broadcast echo collapse into one entry.
type Timeline struct {
	mu        sync.RWMutex
	confirmed []*Entry
	local     []*Entry
	byKey     map[string]*Entry
	byID      map[string]*Entry
}

func NewTimeline() *Timeline {
	return &Timeline{
		byKey: make(map[string]*Entry),
		byID:  make(map[string]*Entry),
	}
}

// AddPending records an optimistic local send. It returns false when the
// key is already known.
func (t *Timeline) AddPending(msg Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg.ClientMessageKey == "" {
		return false
	}
	if _, ok := t.byKey[msg.ClientMessageKey]; ok {
		return false
	}
	e := &Entry{Message: msg, State: Pending}
	t.local = append(t.local, e)
	t.byKey[msg.ClientMessageKey] = e
	return true
}

// ApplyBroadcast merges a server-confirmed message. It returns false when
// the message was already confirmed.
func (t *Timeline) ApplyBroadcast(msg Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.confirmLocked(msg)
}

// ApplyHistory merges a history page. Messages seen earlier through
// broadcasts are not duplicated. Returns the number of new entries.
func (t *Timeline) ApplyHistory(msgs []Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	added := 0
	for _, m := range msgs {
		if t.confirmLocked(m) {
			added++
		}
	}
	return added
}

// Reject marks the pending entry of key as rejected. It returns false when
// no pending entry has that key.
func (t *Timeline) Reject(key, reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byKey[key]
	if !ok || e.State != Pending {
		return false
	}
	e.State = Rejected
	e.Reason = reason
	return true
}

// HasPending reports whether key belongs to an entry still awaiting its
// broadcast.
func (t *Timeline) HasPending(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.byKey[key]
	return ok && e.State == Pending
}

// Entries returns a snapshot: confirmed entries first, then local ones.
func (t *Timeline) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, 0, len(t.confirmed)+len(t.local))
	for _, e := range t.confirmed {
		out = append(out, *e)
	}
	for _, e := range t.local {
		out = append(out, *e)
	}
	return out
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.confirmed) + len(t.local)
}

func (t *Timeline) confirmLocked(msg Message) bool {
	if msg.ID == "" {
		return false
	}
	if _, ok := t.byID[msg.ID]; ok {
		return false
	}

	e, ok := t.byKey[msg.ClientMessageKey]
	if ok && msg.ClientMessageKey != "" && e.State != Confirmed {
		t.removeLocal(e)
		e.Message = msg
		e.State = Confirmed
		e.Reason = ""
	} else {
		e = &Entry{Message: msg, State: Confirmed}
		if msg.ClientMessageKey != "" && !ok {
			t.byKey[msg.ClientMessageKey] = e
		}
	}

	t.byID[msg.ID] = e
	t.insertConfirmed(e)
	return true
}

func (t *Timeline) insertConfirmed(e *Entry) {
	i := sort.Search(len(t.confirmed), func(i int) bool {
		return less(e.Message, t.confirmed[i].Message)
	})
	t.confirmed = append(t.confirmed, nil)
	copy(t.confirmed[i+1:], t.confirmed[i:])
	t.confirmed[i] = e
}

func (t *Timeline) removeLocal(e *Entry) {
	for i, x := range t.local {
		if x == e {
			t.local = append(t.local[:i], t.local[i+1:]...)
			return
		}
	}
}

func less(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

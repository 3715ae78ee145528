package client

import "sync"

// UnreadLedger reconciles the local unread badge. Fetched conversation
// lists are authoritative; conversation_updated pushes adjust the ledger
// between fetches; opening a conversation zeroes it locally the same way
// the server does on history fetch. A briefly stale badge is acceptable,
// it self-corrects on the next fetch.
type UnreadLedger struct {
	selfID string

	mu     sync.Mutex
	counts map[string]int
	open   string // conversation currently on screen, if any
}

func NewUnreadLedger(selfID string) *UnreadLedger {
	return &UnreadLedger{selfID: selfID, counts: make(map[string]int)}
}

// ApplyFetch replaces the ledger with server-resolved counts.
func (l *UnreadLedger) ApplyFetch(counts map[string]int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts = make(map[string]int, len(counts))
	for conversationID, n := range counts {
		l.counts[conversationID] = n
	}
	if l.open != "" {
		l.counts[l.open] = 0
	}
}

// ApplyPush folds one conversation_updated event in. Messages the user
// sent themselves, and messages for the conversation already on screen,
// do not raise the badge.
func (l *UnreadLedger) ApplyPush(conversationID, senderID string) {
	if senderID == l.selfID {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if conversationID == l.open {
		return
	}
	l.counts[conversationID]++
}

// Open marks a conversation as on screen and zeroes its count.
func (l *UnreadLedger) Open(conversationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = conversationID
	l.counts[conversationID] = 0
}

// CloseConversation clears the on-screen marker.
func (l *UnreadLedger) CloseConversation() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = ""
}

// Count returns one conversation's local unread count.
func (l *UnreadLedger) Count(conversationID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[conversationID]
}

// Total is the portal-wide badge value.
func (l *UnreadLedger) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, n := range l.counts {
		total += n
	}
	return total
}

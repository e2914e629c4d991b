package protocol

import "sync"

// Broadcaster is the publish-subscribe index spec section 9 calls for in
// place of "ad hoc broadcast by iterating connections": connections bound
// to a board are indexed by board id, so fan-out never has to scan every
// live connection on the process.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]map[*Connection]struct{}
}

// NewBroadcaster creates an empty index.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[*Connection]struct{})}
}

// Subscribe binds conn to boardID. A connection may only be subscribed to
// one board at a time in this protocol (spec section 4.6's state
// machine); callers unsubscribe from the old board, if any, before
// subscribing to a new one.
func (b *Broadcaster) Subscribe(boardID string, conn *Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[boardID]
	if !ok {
		set = make(map[*Connection]struct{})
		b.subs[boardID] = set
	}
	set[conn] = struct{}{}
}

// Unsubscribe removes conn from boardID's fan-out set, called on
// disconnect (spec section 5's "cancellation... removes the connection
// from the bound-connections index").
func (b *Broadcaster) Unsubscribe(boardID string, conn *Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[boardID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(b.subs, boardID)
	}
}

// BroadcastExcept sends msg to every connection currently bound to
// boardID other than except (spec section 4.6's accept fan-out: "every
// ACCEPT is broadcast to all connections currently bound to the same
// board except the proposer").
func (b *Broadcaster) BroadcastExcept(boardID string, except *Connection, msg interface{}) {
	b.mu.RLock()
	set := b.subs[boardID]
	targets := make([]*Connection, 0, len(set))
	for conn := range set {
		if conn != except {
			targets = append(targets, conn)
		}
	}
	b.mu.RUnlock()

	for _, conn := range targets {
		_ = conn.Send(msg)
	}
}

// BroadcastAll sends msg to every connection bound to boardID, including
// except-free callers such as the periodic PING sweep.
func (b *Broadcaster) BroadcastAll(boardID string, msg interface{}) {
	b.BroadcastExcept(boardID, nil, msg)
}

// Members returns a snapshot of connections currently bound to boardID,
// used by the PING sweep to compute each connection's own snapshot set.
func (b *Broadcaster) Members(boardID string) []*Connection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	set := b.subs[boardID]
	out := make([]*Connection, 0, len(set))
	for conn := range set {
		out = append(out, conn)
	}
	return out
}

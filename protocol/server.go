package protocol

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kubux/whiteboard/action"
	"github.com/kubux/whiteboard/audit"
	"github.com/kubux/whiteboard/auth"
	"github.com/kubux/whiteboard/boardregistry"
	"github.com/kubux/whiteboard/cache"
	"github.com/kubux/whiteboard/config"
	"github.com/kubux/whiteboard/hashing"
	"github.com/kubux/whiteboard/persistence"
	"github.com/kubux/whiteboard/snapshot"
)

// reasonStaleBeforeHash is a protocol-layer decline reason: the
// proposal's claimed before-hash no longer matches the page's current
// hash, so it is rejected before the engine ever sees it.
const reasonStaleBeforeHash = "stale before-hash"

// Server ties the board registry, the page/board caches, the credential
// store and the broadcast index together behind the WebSocket handler
// (spec section 4.6). Grounded on scm/network.go's "websocket" builtin:
// same Upgrader shape, same read-loop structure, generalized from a
// single callback into the fixed five-message dispatch this protocol
// defines.
type Server struct {
	cfg      config.Config
	registry *boardregistry.Registry
	backend  persistence.Backend
	pages    *cache.Manager[*persistence.PageEntry]
	boards   *cache.Manager[*persistence.BoardEntry]
	creds    *auth.CreateCredentials
	bus      *Broadcaster
	audit    *audit.Sink // nil disables the external audit mirror

	// inboxesMu guards inboxes, the per-board task queues that linearize
	// every operation touching a page's in-memory state (spec section 5).
	inboxesMu sync.Mutex
	inboxes   map[string]*boardInbox

	upgrader websocket.Upgrader
}

// NewServer wires the already-constructed subsystems into a protocol
// server. auditSink may be nil.
func NewServer(cfg config.Config, registry *boardregistry.Registry, backend persistence.Backend, pages *cache.Manager[*persistence.PageEntry], boards *cache.Manager[*persistence.BoardEntry], creds *auth.CreateCredentials, auditSink *audit.Sink) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		backend:  backend,
		pages:    pages,
		boards:   boards,
		creds:    creds,
		bus:      NewBroadcaster(),
		audit:    auditSink,
		inboxes:  make(map[string]*boardInbox),
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// HandleWebSocket upgrades the HTTP request and runs the connection's
// read loop until disconnect.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("protocol: upgrade failed: %v", err)
		return
	}
	conn := NewConnection(ws)
	s.readLoop(conn)
}

func (s *Server) readLoop(conn *Connection) {
	defer func() {
		if conn.CurrentBoard != "" {
			s.bus.Unsubscribe(conn.CurrentBoard, conn)
		}
		conn.Close()
	}()

	for {
		raw, err, ok := conn.ReadMessage()
		if !ok {
			return
		}
		if err != nil {
			log.Printf("protocol: read error for client %s: %v", conn.ClientID, err)
			return
		}
		if raw == nil {
			continue // non-text frame, ignored
		}

		msgType, err := decodeType(raw)
		if err != nil {
			s.sendError(conn, "", "malformed message")
			continue
		}

		switch msgType {
		case TypeRegisterBoard:
			s.handleRegisterBoard(conn, raw)
		case TypeCreateBoard:
			s.handleCreateBoard(conn, raw)
		case TypeFullPageRequest:
			s.handleFullPageRequest(conn, raw)
		case TypeModActionProposal:
			s.handleModActionProposal(conn, raw)
		case TypeReplayRequest:
			s.handleReplayRequest(conn, raw)
		default:
			s.sendError(conn, "", "unknown message type "+msgType)
		}
	}
}

func (s *Server) sendError(conn *Connection, requestID, reason string) {
	log.Printf("protocol: protocol error for client %s: %s", conn.ClientID, reason)
	_ = conn.Send(ProtocolError{Type: TypeError, Reason: reason, RequestID: requestID})
}

func (s *Server) sendDecline(conn *Connection, pageUUID, actionUUID, reason string) {
	_ = conn.Send(Decline{Type: TypeDecline, UUID: pageUUID, ActionUUID: actionUUID, Reason: reason})
}

func (s *Server) loadPage(pageID string) (*persistence.PageEntry, func(), error) {
	return s.pages.Acquire(pageID, func() (*persistence.PageEntry, error) {
		return persistence.NewPageEntry(s.backend, pageID)
	})
}

// pinBoardForWrite brackets a board mutation with the board cache's
// pin/release discipline (spec section 4.5). Boards themselves stay
// permanently resident in the registry (spec section 3: "never destroyed
// automatically"); the cache here governs only write-back timing, not
// memory residency, so the loader simply wraps the already-registered
// board rather than re-reading it from disk.
func (s *Server) pinBoardForWrite(board *boardregistry.Board) func() {
	_, release, err := s.boards.Acquire(board.ID, func() (*persistence.BoardEntry, error) {
		return &persistence.BoardEntry{Board: board, Backend: s.backend}, nil
	})
	if err != nil {
		return func() {}
	}
	return release
}

func indexOf(list []string, v string) int {
	for i, item := range list {
		if item == v {
			return i
		}
	}
	return -1
}

// sendFullPage resolves and sends a page snapshot, serialized through the
// board's task inbox so it never races a concurrent proposal's mutation
// of the same page (spec section 5).
func (s *Server) sendFullPage(conn *Connection, board *boardregistry.Board, pageID string) {
	s.inboxFor(board.ID).Do(func() {
		s.doSendFullPage(conn, board, pageID)
	})
}

// doSendFullPage is sendFullPage's body, callable directly by code that is
// already running inside the board's inbox task (to avoid deadlocking by
// calling Do reentrantly).
func (s *Server) doSendFullPage(conn *Connection, board *boardregistry.Board, pageID string) {
	resolved := board.Resolve(pageID)
	entry, release, err := s.loadPage(resolved)
	if err != nil {
		s.sendError(conn, "", "could not load page")
		return
	}
	defer release()

	historyJSON, err := json.Marshal(entry.Page.HistorySnapshot())
	if err != nil {
		s.sendError(conn, "", "could not encode history")
		return
	}
	order := board.PageOrder()
	_ = conn.Send(FullPage{
		Type:       TypeFullPage,
		UUID:       resolved,
		History:    historyJSON,
		Present:    entry.Page.Present,
		Hash:       entry.Page.CurrentHash().String(),
		PageNr:     indexOf(order, resolved) + 1,
		TotalPages: len(order),
	})
}

func (s *Server) handleRegisterBoard(conn *Connection, raw []byte) {
	var msg RegisterBoard
	if err := json.Unmarshal(raw, &msg); err != nil || msg.BoardID == "" || msg.ClientID == "" {
		s.sendError(conn, msg.RequestID, "register-board: missing required field")
		return
	}
	board := s.registry.Get(msg.BoardID)
	if board == nil {
		s.sendError(conn, msg.RequestID, "unknown board")
		return
	}
	s.bindConnection(conn, board, msg.ClientID)
	order := board.PageOrder()
	_ = conn.Send(BoardRegistered{
		Type:        TypeBoardRegistered,
		BoardID:     board.ID,
		FirstPageID: conn.CurrentPageID,
		TotalPages:  len(order),
		RequestID:   msg.RequestID,
	})
	s.sendFullPage(conn, board, conn.CurrentPageID)
}

func (s *Server) bindConnection(conn *Connection, board *boardregistry.Board, clientID string) {
	if conn.CurrentBoard != "" {
		s.bus.Unsubscribe(conn.CurrentBoard, conn)
	}
	conn.ClientID = clientID
	conn.CurrentBoard = board.ID
	conn.CurrentPageID = board.FirstPage()
	s.bus.Subscribe(board.ID, conn)
}

func (s *Server) handleCreateBoard(conn *Connection, raw []byte) {
	var msg CreateBoard
	if err := json.Unmarshal(raw, &msg); err != nil || msg.ClientID == "" {
		s.sendError(conn, msg.RequestID, "create-board: missing required field")
		return
	}
	if !s.creds.CanCreate(msg.Passwd) {
		s.sendError(conn, msg.RequestID, "unauthorized")
		return
	}

	boardID := uuid.NewString()
	firstPageID := uuid.NewString()
	editKey := uuid.NewString()

	board := boardregistry.NewBoard(boardID, auth.Digest(editKey), firstPageID)
	if err := s.registry.Register(board); err != nil {
		s.sendError(conn, msg.RequestID, "could not register board")
		return
	}
	release := s.pinBoardForWrite(board)
	release()

	s.bindConnection(conn, board, msg.ClientID)
	_ = conn.Send(BoardCreated{
		Type:        TypeBoardCreated,
		BoardID:     boardID,
		Passwd:      editKey,
		FirstPageID: firstPageID,
		RequestID:   msg.RequestID,
	})
	s.sendFullPage(conn, board, firstPageID)
}

func (s *Server) handleFullPageRequest(conn *Connection, raw []byte) {
	var msg FullPageRequest
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendError(conn, msg.RequestID, "fullPage-requests: malformed")
		return
	}
	board := s.registry.Get(conn.CurrentBoard)
	if board == nil {
		s.sendError(conn, msg.RequestID, "connection is not bound to a board")
		return
	}

	order := board.PageOrder()
	var target string
	switch {
	case msg.PageNumber != nil:
		idx := *msg.PageNumber - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= len(order) {
			idx = len(order) - 1
		}
		target = order[idx]
	case msg.PageID != "":
		resolved := board.Resolve(msg.PageID)
		idx := indexOf(order, resolved) + msg.Delta
		if idx < 0 {
			idx = 0
		}
		if idx >= len(order) {
			idx = len(order) - 1
		}
		target = order[idx]
	default:
		target = conn.CurrentPageID
	}

	conn.CurrentPageID = target
	s.sendFullPage(conn, board, target)
}

func (s *Server) handleReplayRequest(conn *Connection, raw []byte) {
	var msg ReplayRequest
	if err := json.Unmarshal(raw, &msg); err != nil || msg.PageUUID == "" {
		s.sendError(conn, msg.RequestID, "replay-requests: missing required field")
		return
	}
	board := s.registry.Get(conn.CurrentBoard)
	if board == nil {
		s.sendError(conn, msg.RequestID, "connection is not bound to a board")
		return
	}
	resolved := board.Resolve(msg.PageUUID)

	s.inboxFor(board.ID).Do(func() {
		s.doHandleReplayRequest(conn, board, resolved, msg)
	})
}

func (s *Server) doHandleReplayRequest(conn *Connection, board *boardregistry.Board, resolved string, msg ReplayRequest) {
	entry, release, err := s.loadPage(resolved)
	if err != nil {
		s.sendError(conn, msg.RequestID, "could not load page")
		return
	}
	defer release()

	claimed, ok := hashing.ParseDigest(msg.PresentHash)
	if !ok || msg.Present < 0 || msg.Present >= len(entry.Page.Hashes) || !entry.Page.Hashes[msg.Present].Equal(claimed) {
		// Stale or unrecognized claimed position: fall back to FULL_PAGE
		// (spec section 4.8, scenario 5) rather than attempt a replay.
		s.doSendFullPage(conn, board, resolved)
		return
	}

	actions, hashes, ok := entry.Page.SliceFrom(msg.Present)
	if !ok {
		s.doSendFullPage(conn, board, resolved)
		return
	}
	editsJSON, err := json.Marshal(actions)
	if err != nil {
		s.sendError(conn, msg.RequestID, "could not encode edits")
		return
	}
	order := board.PageOrder()
	_ = conn.Send(Replay{
		Type:        TypeReplay,
		UUID:        resolved,
		BeforeHash:  hashes[0].String(),
		AfterHash:   hashes[len(hashes)-1].String(),
		Edits:       editsJSON,
		Present:     entry.Page.Present,
		CurrentHash: entry.Page.CurrentHash().String(),
		PageNr:      indexOf(order, resolved) + 1,
		TotalPages:  len(order),
	})
}

func (s *Server) handleModActionProposal(conn *Connection, raw []byte) {
	var msg ModActionProposal
	if err := json.Unmarshal(raw, &msg); err != nil || msg.PageUUID == "" {
		s.sendError(conn, "", "mod-action-proposals: missing required field")
		return
	}
	board := s.registry.Get(conn.CurrentBoard)
	if board == nil {
		s.sendError(conn, "", "connection is not bound to a board")
		return
	}
	if !auth.Verify(msg.Passwd, board.PasswordDigest) {
		s.sendDecline(conn, msg.PageUUID, "", "unauthorized")
		return
	}

	var act action.Action
	if err := json.Unmarshal(msg.Payload, &act); err != nil {
		s.sendError(conn, "", "mod-action-proposals: malformed payload")
		return
	}
	if err := act.Validate(); err != nil {
		s.sendError(conn, "", "mod-action-proposals: "+err.Error())
		return
	}

	resolved := board.Resolve(msg.PageUUID)

	// Every mutation against this board's pages is linearized through its
	// task inbox (spec section 5): two connections proposing against the
	// same page concurrently must not both reach pageengine.Page, which
	// does not lock itself.
	s.inboxFor(board.ID).Do(func() {
		if act.Type == action.TypeNewPage || act.Type == action.TypeDeletePage {
			s.applyBoardLevelAction(conn, board, resolved, act)
			return
		}
		s.applyPageEdit(conn, board, resolved, act, msg.BeforeHash)
	})
}

// applyPageEdit runs inside the board's inbox task: load the page, check
// the claimed before-hash, apply the edit/undo/redo, and accept or
// decline.
func (s *Server) applyPageEdit(conn *Connection, board *boardregistry.Board, resolved string, act action.Action, beforeHash string) {
	entry, release, err := s.loadPage(resolved)
	if err != nil {
		s.sendError(conn, "", "could not load page")
		return
	}
	defer release()

	if claimed, ok := hashing.ParseDigest(beforeHash); !ok || !entry.Page.CurrentHash().Equal(claimed) {
		s.sendDecline(conn, resolved, actionUUIDOf(act), reasonStaleBeforeHash)
		return
	}

	var result struct {
		ok         bool
		reason     string
		beforeHash string
		afterHash  string
	}
	switch act.Type {
	case action.TypeUndo:
		r := entry.Page.ApplyUndo(act.Target)
		result.ok, result.reason = r.OK, r.Reason
		result.beforeHash, result.afterHash = r.BeforeHash.String(), r.AfterHash.String()
	case action.TypeRedo:
		r := entry.Page.ApplyRedo(act.Target)
		result.ok, result.reason = r.OK, r.Reason
		result.beforeHash, result.afterHash = r.BeforeHash.String(), r.AfterHash.String()
	default:
		r := entry.Page.ApplyEdit(act)
		result.ok, result.reason = r.OK, r.Reason
		result.beforeHash, result.afterHash = r.BeforeHash.String(), r.AfterHash.String()
	}

	if !result.ok {
		s.sendDecline(conn, resolved, actionUUIDOf(act), result.reason)
		return
	}

	if !entry.Page.CheckConsistency() {
		log.Printf("protocol: page %s visual state diverged from its history, rebuilding", resolved)
		if err := entry.Page.RebuildFromHistory(); err != nil {
			log.Printf("protocol: rebuilding page %s: %v", resolved, err)
		}
	}

	order := board.PageOrder()
	accept := Accept{
		Type:       TypeAccept,
		UUID:       resolved,
		ActionUUID: actionUUIDOf(act),
		BeforeHash: result.beforeHash,
		AfterHash:  result.afterHash,
		PageNr:     indexOf(order, resolved) + 1,
		TotalPages: len(order),
	}
	_ = conn.Send(accept)
	s.bus.BroadcastExcept(board.ID, conn, accept)

	if s.audit != nil {
		s.audit.RecordAccept(board.ID, resolved, accept.ActionUUID, string(act.Type), time.Now())
	}
}

// deletionMapMu serializes writes of the site-wide deletion-map file,
// which page deletions on different boards (different inboxes) share.
var deletionMapMu sync.Mutex

func (s *Server) applyBoardLevelAction(conn *Connection, board *boardregistry.Board, resolved string, act action.Action) {
	release := s.pinBoardForWrite(board)
	defer release()

	switch act.Type {
	case action.TypeNewPage:
		newPageID := uuid.NewString()
		if err := board.InsertPageAfter(resolved, newPageID); err != nil {
			s.sendDecline(conn, resolved, newPageID, err.Error())
			return
		}
		order := board.PageOrder()
		accept := Accept{
			Type:       TypeAccept,
			UUID:       resolved,
			ActionUUID: newPageID,
			PageNr:     indexOf(order, newPageID) + 1,
			TotalPages: len(order),
		}
		_ = conn.Send(accept)
		s.bus.BroadcastExcept(board.ID, conn, accept)
	case action.TypeDeletePage:
		if err := board.DeletePage(resolved); err != nil {
			s.sendDecline(conn, resolved, resolved, err.Error())
			return
		}
		deletionMapMu.Lock()
		deletions := persistence.DeletionMap{}
		for _, b := range s.registry.All() {
			deletions.Merge(b)
		}
		if err := deletions.Save(s.backend); err != nil {
			log.Printf("protocol: saving deletion map: %v", err)
		}
		deletionMapMu.Unlock()
		if conn.CurrentPageID == resolved {
			conn.CurrentPageID = board.Resolve(resolved)
		}
		order := board.PageOrder()
		accept := Accept{
			Type:       TypeAccept,
			UUID:       board.Resolve(resolved),
			ActionUUID: resolved,
			PageNr:     indexOf(order, board.Resolve(resolved)) + 1,
			TotalPages: len(order),
		}
		_ = conn.Send(accept)
		s.bus.BroadcastExcept(board.ID, conn, accept)
	}
}

func actionUUIDOf(a action.Action) string {
	switch a.Type {
	case action.TypeUndo, action.TypeRedo:
		return a.Target
	default:
		return a.UUID
	}
}

// StartPingLoop runs the server-initiated liveness/consistency probe
// (spec section 4.6) until ctx is canceled.
func (s *Server) StartPingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.pingSweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Server) pingSweep() {
	for _, board := range s.registry.All() {
		members := s.bus.Members(board.ID)
		if len(members) == 0 {
			continue
		}
		byPage := make(map[string][]*Connection)
		for _, c := range members {
			byPage[c.CurrentPageID] = append(byPage[c.CurrentPageID], c)
		}
		order := board.PageOrder()
		// Reading a page's History/Hashes races a concurrent proposal on
		// the same board just as writing it would, so the sweep goes
		// through the board's inbox too (spec section 5).
		s.inboxFor(board.ID).Do(func() {
			for pageID, conns := range byPage {
				entry, release, err := s.loadPage(pageID)
				if err != nil {
					continue
				}
				indices := snapshot.Indices(len(entry.Page.History))
				snaps := make([]string, len(indices))
				for i, idx := range indices {
					snaps[i] = entry.Page.Hashes[idx].String()
				}
				ping := Ping{
					Type:       TypePing,
					UUID:       pageID,
					Hash:       entry.Page.CurrentHash().String(),
					PageNr:     indexOf(order, pageID) + 1,
					TotalPages: len(order),
					Snapshots:  snaps,
				}
				for _, c := range conns {
					_ = c.Send(ping)
				}
				release()
			}
		})
	}
}

// Package protocol implements the message-oriented WebSocket
// synchronization protocol of spec section 6: the message catalog,
// per-connection state machine, and same-board broadcast fan-out.
package protocol

import "encoding/json"

// Message type tags (spec section 6.2).
const (
	TypeRegisterBoard     = "register-board"
	TypeCreateBoard       = "create-board"
	TypeFullPageRequest   = "fullPage-requests"
	TypeModActionProposal = "mod-action-proposals"
	TypeReplayRequest     = "replay-requests"

	TypeBoardCreated    = "board-created"
	TypeBoardRegistered = "board-registered"
	TypeFullPage        = "fullPage"
	TypeAccept          = "accept"
	TypeDecline         = "decline"
	TypeReplay          = "replay"
	TypePing            = "ping"
	TypeError           = "error"
)

// envelope is decoded first to discover Type before unmarshaling the
// full, type-specific payload.
type envelope struct {
	Type string `json:"type"`
}

// Client -> Server messages.

type RegisterBoard struct {
	Type      string `json:"type"`
	BoardID   string `json:"boardId"`
	ClientID  string `json:"clientId"`
	RequestID string `json:"requestId"`
}

type CreateBoard struct {
	Type      string `json:"type"`
	Passwd    string `json:"passwd"`
	ClientID  string `json:"clientId"`
	RequestID string `json:"requestId"`
}

type FullPageRequest struct {
	Type string `json:"type"`
	// PageNumber is a 1-based absolute page index. Mutually exclusive
	// with PageID/Delta: either PageNumber is set, or PageID names a
	// starting page and Delta is a relative offset from it (navigation,
	// saturating at both ends of the board's page order).
	PageNumber *int   `json:"pageNumber,omitempty"`
	PageID     string `json:"pageId,omitempty"`
	Delta      int    `json:"delta,omitempty"`
	RequestID  string `json:"requestId"`
}

type ModActionProposal struct {
	Type       string          `json:"type"`
	Passwd     string          `json:"passwd"`
	PageUUID   string          `json:"page-uuid"`
	Payload    json.RawMessage `json:"payload"`
	BeforeHash string          `json:"before-hash"`
}

type ReplayRequest struct {
	Type        string `json:"type"`
	PageUUID    string `json:"page-uuid"`
	Present     int    `json:"present"`
	PresentHash string `json:"present-hash"`
	RequestID   string `json:"requestId"`
}

// Server -> Client messages.

type BoardCreated struct {
	Type        string `json:"type"`
	BoardID     string `json:"boardId"`
	Passwd      string `json:"passwd"`
	FirstPageID string `json:"firstPageId"`
	RequestID   string `json:"requestId"`
}

type BoardRegistered struct {
	Type        string `json:"type"`
	BoardID     string `json:"boardId"`
	FirstPageID string `json:"firstPageId"`
	TotalPages  int    `json:"totalPages"`
	RequestID   string `json:"requestId"`
}

type FullPage struct {
	Type       string          `json:"type"`
	UUID       string          `json:"uuid"`
	History    json.RawMessage `json:"history"`
	Present    int             `json:"present"`
	Hash       string          `json:"hash"`
	PageNr     int             `json:"pageNr"`
	TotalPages int             `json:"totalPages"`
}

type Accept struct {
	Type       string `json:"type"`
	UUID       string `json:"uuid"`
	ActionUUID string `json:"action-uuid"`
	BeforeHash string `json:"before-hash"`
	AfterHash  string `json:"after-hash"`
	PageNr     int    `json:"pageNr"`
	TotalPages int    `json:"totalPages"`
}

type Decline struct {
	Type       string `json:"type"`
	UUID       string `json:"uuid"`
	ActionUUID string `json:"action-uuid"`
	Reason     string `json:"reason"`
}

type Replay struct {
	Type        string          `json:"type"`
	UUID        string          `json:"uuid"`
	BeforeHash  string          `json:"beforeHash"`
	AfterHash   string          `json:"afterHash"`
	Edits       json.RawMessage `json:"edits"`
	Present     int             `json:"present"`
	CurrentHash string          `json:"currentHash"`
	PageNr      int             `json:"pageNr"`
	TotalPages  int             `json:"totalPages"`
}

type Ping struct {
	Type       string   `json:"type"`
	UUID       string   `json:"uuid"`
	Hash       string   `json:"hash"`
	PageNr     int      `json:"pageNr"`
	TotalPages int      `json:"totalPages"`
	Snapshots  []string `json:"snapshots"`
}

type ProtocolError struct {
	Type      string `json:"type"`
	Reason    string `json:"reason"`
	RequestID string `json:"requestId,omitempty"`
}

// decodeType returns the envelope's type tag without validating the rest
// of the payload.
func decodeType(raw []byte) (string, error) {
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return "", err
	}
	return e.Type, nil
}

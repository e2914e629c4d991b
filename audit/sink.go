// Package audit implements an optional external SQL mirror of every
// accepted action (SPEC_FULL section "Supplemented Features"). It is
// fire-and-forget: a slow or unreachable audit database must never delay
// or fail a proposal.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Sink mirrors accepted actions into an external SQL table. Driver
// selection is by DSN scheme ("mysql://..." or "postgres://..."),
// grounded on storage/mysql_import.go's database/sql + blank-imported
// driver pattern — there used to read an external schema, here used to
// append audit rows.
type Sink struct {
	db        *sql.DB
	insertSQL string
	insert    chan auditRow
	done      chan struct{}
}

type auditRow struct {
	boardID    string
	pageID     string
	actionUUID string
	actionType string
	acceptedAt time.Time
}

// driverForDSN picks a database/sql driver name from a DSN's scheme.
func driverForDSN(dsn string) (driver, rest string, err error) {
	switch {
	case strings.HasPrefix(dsn, "mysql://"):
		return "mysql", strings.TrimPrefix(dsn, "mysql://"), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn, nil
	default:
		return "", "", fmt.Errorf("audit: unrecognized DSN scheme in %q", dsn)
	}
}

// NewSink opens a connection pool for dsn and starts a background writer.
// The returned Sink's Close must be called to drain pending rows on
// shutdown.
func NewSink(dsn string) (*Sink, error) {
	driver, connStr, err := driverForDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("audit: opening %s: %w", driver, err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: pinging %s: %w", driver, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS whiteboard_audit (
		board_id VARCHAR(64) NOT NULL,
		page_id VARCHAR(64) NOT NULL,
		action_uuid VARCHAR(64) NOT NULL,
		action_type VARCHAR(32) NOT NULL,
		accepted_at TIMESTAMP NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: creating table: %w", err)
	}

	s := &Sink{db: db, insertSQL: insertSQLFor(driver), insert: make(chan auditRow, 1024), done: make(chan struct{})}
	go s.run()
	return s, nil
}

// insertSQLFor renders the audit INSERT with the placeholder syntax the
// chosen driver actually accepts: lib/pq requires "$1, $2, ..." and
// rejects "?" outright, while go-sql-driver/mysql is the reverse.
func insertSQLFor(driver string) string {
	columns := "(board_id, page_id, action_uuid, action_type, accepted_at)"
	if driver == "postgres" {
		return fmt.Sprintf("INSERT INTO whiteboard_audit %s VALUES ($1, $2, $3, $4, $5)", columns)
	}
	return fmt.Sprintf("INSERT INTO whiteboard_audit %s VALUES (?, ?, ?, ?, ?)", columns)
}

func (s *Sink) run() {
	defer close(s.done)
	for row := range s.insert {
		_, err := s.db.Exec(s.insertSQL, row.boardID, row.pageID, row.actionUUID, row.actionType, row.acceptedAt)
		if err != nil {
			log.Printf("audit: insert failed, dropping row: %v", err)
		}
	}
}

// RecordAccept enqueues an audit row for an accepted action. It never
// blocks the caller on slow I/O: if the internal queue is full, the row
// is dropped and logged rather than backing up the proposer.
func (s *Sink) RecordAccept(boardID, pageID, actionUUID, actionType string, acceptedAt time.Time) {
	row := auditRow{boardID: boardID, pageID: pageID, actionUUID: actionUUID, actionType: actionType, acceptedAt: acceptedAt}
	select {
	case s.insert <- row:
	default:
		log.Printf("audit: queue full, dropping row for action %s", actionUUID)
	}
}

// Close drains the queue and closes the underlying connection pool.
func (s *Sink) Close() error {
	close(s.insert)
	<-s.done
	return s.db.Close()
}

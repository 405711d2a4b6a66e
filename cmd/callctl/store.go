package main

import (
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"

	"github.com/opd-ai/voipcore/call"
)

// migrations holds the ordered schema statements applied exactly once per
// database file.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS proxy_capability (
		id       INTEGER PRIMARY KEY CHECK (id = 1),
		server   TEXT NOT NULL,
		udp      INTEGER NOT NULL,
		tcp      INTEGER NOT NULL
	)`,
}

// stateStore caches the last-known proxy capability across process
// restarts, so callctl does not have to re-probe a proxy's UDP support on
// every run. This is the only persistence the call engine itself needs;
// everything else in call.PersistentState is sealed and handed to the
// caller opaquely.
type stateStore struct {
	db *sql.DB
}

func openStateStore(path string) (*stateStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &stateStore{db: db}, nil
}

func (s *stateStore) Close() error {
	return s.db.Close()
}

// LoadProxyCapability returns the cached capability, if one has ever been
// saved.
func (s *stateStore) LoadProxyCapability() (*call.ProxyCapability, bool, error) {
	row := s.db.QueryRow(`SELECT server, udp, tcp FROM proxy_capability WHERE id = 1`)
	var capability call.ProxyCapability
	var udp, tcp int
	err := row.Scan(&capability.Server, &udp, &tcp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	capability.UDP = udp != 0
	capability.TCP = tcp != 0
	return &capability, true, nil
}

// SaveProxyCapability upserts the single cached row.
func (s *stateStore) SaveProxyCapability(capability call.ProxyCapability) error {
	_, err := s.db.Exec(
		`INSERT INTO proxy_capability (id, server, udp, tcp) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET server = excluded.server, udp = excluded.udp, tcp = excluded.tcp`,
		capability.Server, boolToInt(capability.UDP), boolToInt(capability.TCP),
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

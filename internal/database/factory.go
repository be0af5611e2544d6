package database

import (
	"fmt"

	"pushback/internal/pushback"
)

// HistoryStore is a History that owns a closable resource.
type HistoryStore interface {
	pushback.History
	Close() error
}

// NewHistoryFromConfig opens the run history named by the history_db option.
// "memory" keeps history for the life of the process and "off" disables it.
func NewHistoryFromConfig(historyDB string) (HistoryStore, error) {
	switch historyDB {
	case "":
		return nil, fmt.Errorf("history_db is not set")
	case "off", "none":
		return nopStore{}, nil
	case "memory":
		return NewSQLiteHistory(":memory:")
	default:
		return NewSQLiteHistory(historyDB)
	}
}

type nopStore struct {
	pushback.NopHistory
}

func (nopStore) Close() error { return nil }

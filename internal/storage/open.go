package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "tellbot/pkg/logx"
)

// Store is the persistence API used by the engine.
type Store interface {
	Load(ctx context.Context) (*State, error)

	// ReplaceAliases deletes the alias sets owned by dropBases and, when
	// base is non-empty, writes rows as the new set under base.
	ReplaceAliases(ctx context.Context, dropBases []string, base string, rows []AliasRow) error

	// ReplaceGroup rewrites one group wholesale: description and members.
	ReplaceGroup(ctx context.Context, g GroupRecord) error

	AddMessage(ctx context.Context, m MessageRow) error
	MarkDelivered(ctx context.Context, ids []string, at time.Time) error
	SetDeliveredTo(ctx context.Context, id, noticeID string) error

	// RekeyRecipients rewrites message recipient keys after an alias merge
	// or split.
	RekeyRecipients(ctx context.Context, remap map[string]string) error
	DeleteMessages(ctx context.Context, ids []string) error

	SaveSeen(ctx context.Context, row SeenRow) error
	SaveAlert(ctx context.Context, row AlertRow) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "tellbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (*State, error) {
	st := &State{Aliases: map[string][]AliasRow{}}

	rows, err := s.db.QueryContext(ctx, `SELECT base, key, display, pos FROM aliases ORDER BY base, pos`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var r AliasRow
		if err := rows.Scan(&r.Base, &r.Key, &r.Display, &r.Pos); err != nil {
			rows.Close()
			return nil, err
		}
		st.Aliases[r.Base] = append(st.Aliases[r.Base], r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadGroups(ctx, st); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT id, from_key, from_display, to_key, to_nick, reason, text, priority, room, created, delivered, delivered_to
		 FROM messages ORDER BY created`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var m MessageRow
		var created, delivered int64
		if err := rows.Scan(&m.ID, &m.FromKey, &m.FromDisplay, &m.ToKey, &m.ToNick,
			&m.Reason, &m.Text, &m.Priority, &m.Room, &created, &delivered, &m.DeliveredTo); err != nil {
			rows.Close()
			return nil, err
		}
		m.Created = fromMilli(created)
		m.Delivered = fromMilli(delivered)
		st.Messages = append(st.Messages, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT key, display, room, at, unread FROM seen`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var r SeenRow
		var at int64
		if err := rows.Scan(&r.Key, &r.Display, &r.Room, &at, &r.Unread); err != nil {
			rows.Close()
			return nil, err
		}
		r.At = fromMilli(at)
		st.Seen = append(st.Seen, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT key, address, throttle_until FROM alerts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var r AlertRow
		var until int64
		if err := rows.Scan(&r.Key, &r.Address, &until); err != nil {
			return nil, err
		}
		r.ThrottleUntil = fromMilli(until)
		st.Alerts = append(st.Alerts, r)
	}
	return st, rows.Err()
}

func (s *sqliteStore) loadGroups(ctx context.Context, st *State) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name, description FROM groups ORDER BY name`)
	if err != nil {
		return err
	}
	idx := map[string]int{}
	for rows.Next() {
		var g GroupRecord
		if err := rows.Scan(&g.Name, &g.Description); err != nil {
			rows.Close()
			return err
		}
		idx[g.Name] = len(st.Groups)
		st.Groups = append(st.Groups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT grp, key, display, pos FROM group_members ORDER BY grp, pos`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var grp string
		var m GroupMemberRow
		if err := rows.Scan(&grp, &m.Key, &m.Display, &m.Pos); err != nil {
			return err
		}
		if i, ok := idx[grp]; ok {
			st.Groups[i].Members = append(st.Groups[i].Members, m)
		}
	}
	return rows.Err()
}

func (s *sqliteStore) ReplaceAliases(ctx context.Context, dropBases []string, base string, rows []AliasRow) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		for _, b := range dropBases {
			if _, err := tx.ExecContext(ctx, `DELETE FROM aliases WHERE base = ?`, b); err != nil {
				return err
			}
		}
		if base == "" {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM aliases WHERE base = ?`, base); err != nil {
			return err
		}
		for _, r := range rows {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO aliases(base, key, display, pos) VALUES(?,?,?,?)`,
				base, r.Key, r.Display, r.Pos); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqliteStore) ReplaceGroup(ctx context.Context, g GroupRecord) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO groups(name, description) VALUES(?,?)
			 ON CONFLICT(name) DO UPDATE SET description=excluded.description`,
			g.Name, g.Description); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE grp = ?`, g.Name); err != nil {
			return err
		}
		for _, m := range g.Members {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO group_members(grp, key, display, pos) VALUES(?,?,?,?)`,
				g.Name, m.Key, m.Display, m.Pos); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqliteStore) AddMessage(ctx context.Context, m MessageRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(id, from_key, from_display, to_key, to_nick, reason, text, priority, room, created, delivered, delivered_to)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.FromKey, m.FromDisplay, m.ToKey, m.ToNick, m.Reason, m.Text,
		m.Priority, m.Room, unixMilli(m.Created), unixMilli(m.Delivered), m.DeliveredTo)
	return err
}

func (s *sqliteStore) MarkDelivered(ctx context.Context, ids []string, at time.Time) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE messages SET delivered = ? WHERE id = ?`, unixMilli(at), id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqliteStore) SetDeliveredTo(ctx context.Context, id, noticeID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE messages SET delivered_to = ? WHERE id = ?`, noticeID, id)
	return err
}

func (s *sqliteStore) RekeyRecipients(ctx context.Context, remap map[string]string) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		for old, next := range remap {
			if _, err := tx.ExecContext(ctx,
				`UPDATE messages SET to_key = ? WHERE to_key = ?`, next, old); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqliteStore) DeleteMessages(ctx context.Context, ids []string) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqliteStore) SaveSeen(ctx context.Context, row SeenRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO seen(key, display, room, at, unread) VALUES(?,?,?,?,?)
		 ON CONFLICT(key) DO UPDATE SET display=excluded.display, room=excluded.room, at=excluded.at, unread=excluded.unread`,
		row.Key, row.Display, row.Room, unixMilli(row.At), row.Unread)
	return err
}

func (s *sqliteStore) SaveAlert(ctx context.Context, row AlertRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts(key, address, throttle_until) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET address=excluded.address, throttle_until=excluded.throttle_until`,
		row.Key, row.Address, unixMilli(row.ThrottleUntil))
	return err
}

func (s *sqliteStore) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

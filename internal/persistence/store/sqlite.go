// Package store is the sqlite persistence gateway: characters and their
// ledger snapshots, plus the content digests the ledgers were played
// against. One process owns the database file; no external writers.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"idlescape.quest/internal/game/content"
	"idlescape.quest/internal/game/ids"
	"idlescape.quest/internal/game/tuning"
	"idlescape.quest/internal/persistence/snapshot"
)

// ErrNotFound is returned when a character does not exist.
var ErrNotFound = errors.New("store: character not found")

// ErrNameTaken is returned when creating a character with a name already in
// use.
var ErrNameTaken = errors.New("store: character name taken")

type Character struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL keeps saves cheap; NORMAL durability is enough for a game save
	// written after every action.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS characters (
			character_id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS character_skills (
			character_id TEXT NOT NULL REFERENCES characters(character_id),
			skill TEXT NOT NULL,
			experience INTEGER NOT NULL,
			PRIMARY KEY (character_id, skill)
		);`,
		`CREATE TABLE IF NOT EXISTS character_items (
			character_id TEXT NOT NULL REFERENCES characters(character_id),
			item TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			PRIMARY KEY (character_id, item)
		);`,
		`CREATE TABLE IF NOT EXISTS character_activity (
			character_id TEXT PRIMARY KEY REFERENCES characters(character_id),
			action TEXT NOT NULL,
			started_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CreateCharacter(ctx context.Context, name string) (Character, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Character{}, fmt.Errorf("store: empty character name")
	}
	c := Character{
		ID:        ids.NewCharacterID(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO characters(character_id,name,created_at) VALUES(?,?,?)`,
		c.ID, c.Name, c.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return Character{}, fmt.Errorf("%w: %q", ErrNameTaken, name)
		}
		return Character{}, err
	}
	return c, nil
}

func (s *Store) GetCharacterByName(ctx context.Context, name string) (Character, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT character_id, name, created_at FROM characters WHERE name = ?`, name)
	return scanCharacter(row)
}

func (s *Store) GetCharacter(ctx context.Context, id string) (Character, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT character_id, name, created_at FROM characters WHERE character_id = ?`, id)
	return scanCharacter(row)
}

func scanCharacter(row *sql.Row) (Character, error) {
	var c Character
	var created string
	if err := row.Scan(&c.ID, &c.Name, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Character{}, ErrNotFound
		}
		return Character{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Character{}, fmt.Errorf("store: bad created_at %q: %w", created, err)
	}
	c.CreatedAt = t
	return c, nil
}

func (s *Store) ListCharacters(ctx context.Context) ([]Character, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT character_id, name, created_at FROM characters ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Character
	for rows.Next() {
		var c Character
		var created string
		if err := rows.Scan(&c.ID, &c.Name, &created); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("store: bad created_at %q: %w", created, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LoadLedger reads the character's full snapshot. A character with no rows
// yet yields an empty snapshot, never an error: ledgers start empty.
func (s *Store) LoadLedger(ctx context.Context, characterID string) (snapshot.LedgerV1, error) {
	snap := snapshot.LedgerV1{
		Header: snapshot.Header{Version: snapshot.Version, CharacterID: characterID},
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT skill, experience FROM character_skills WHERE character_id = ? ORDER BY skill`, characterID)
	if err != nil {
		return snap, err
	}
	defer rows.Close()
	for rows.Next() {
		var r snapshot.SkillRowV1
		if err := rows.Scan(&r.Skill, &r.Experience); err != nil {
			return snap, err
		}
		snap.Skills = append(snap.Skills, r)
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}

	irows, err := s.db.QueryContext(ctx,
		`SELECT item, quantity FROM character_items WHERE character_id = ? ORDER BY item`, characterID)
	if err != nil {
		return snap, err
	}
	defer irows.Close()
	for irows.Next() {
		var r snapshot.ItemRowV1
		if err := irows.Scan(&r.Item, &r.Quantity); err != nil {
			return snap, err
		}
		snap.Items = append(snap.Items, r)
	}
	if err := irows.Err(); err != nil {
		return snap, err
	}

	var action, started string
	err = s.db.QueryRowContext(ctx,
		`SELECT action, started_at FROM character_activity WHERE character_id = ?`, characterID).
		Scan(&action, &started)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return snap, err
	default:
		t, perr := time.Parse(time.RFC3339Nano, started)
		if perr != nil {
			return snap, fmt.Errorf("store: bad started_at %q: %w", started, perr)
		}
		snap.Activity = &snapshot.ActivityRowV1{Action: action, StartedAt: t}
	}
	return snap, nil
}

// SaveLedger replaces the character's rows with the snapshot in one
// transaction. The snapshot is the whole ledger; partial writes do not
// exist.
func (s *Store) SaveLedger(ctx context.Context, characterID string, snap snapshot.LedgerV1) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM character_skills WHERE character_id = ?`, characterID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM character_items WHERE character_id = ?`, characterID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM character_activity WHERE character_id = ?`, characterID); err != nil {
		return err
	}
	for _, r := range snap.Skills {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO character_skills(character_id,skill,experience) VALUES(?,?,?)`,
			characterID, r.Skill, r.Experience); err != nil {
			return err
		}
	}
	for _, r := range snap.Items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO character_items(character_id,item,quantity) VALUES(?,?,?)`,
			characterID, r.Item, r.Quantity); err != nil {
			return err
		}
	}
	if snap.Activity != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO character_activity(character_id,action,started_at) VALUES(?,?,?)`,
			characterID, snap.Activity.Action, snap.Activity.StartedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpsertCatalogs records the digests and canonical json of the content and
// tuning the database was last played against, for post-hoc debugging of
// saves.
func (s *Store) UpsertCatalogs(cats *content.Catalogs, tune tuning.Tuning) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv

	{
		skills := make([]content.SkillDef, 0, len(cats.Skills.ByID))
		for _, id := range cats.Skills.Order {
			skills = append(skills, cats.Skills.ByID[id])
		}
		if b, _ := json.Marshal(skills); len(b) > 0 {
			rows = append(rows, kv{name: "skills", digest: cats.Skills.Digest, json: b})
		}
	}
	{
		items := make([]content.ItemDef, 0, len(cats.Items.ByID))
		for _, id := range cats.Items.Order {
			items = append(items, cats.Items.ByID[id])
		}
		if b, _ := json.Marshal(items); len(b) > 0 {
			rows = append(rows, kv{name: "items", digest: cats.Items.Digest, json: b})
		}
	}
	{
		actions := make([]content.ActionDef, 0, len(cats.Actions.ByID))
		for _, a := range cats.Actions.ByID {
			actions = append(actions, a)
		}
		sort.Slice(actions, func(i, j int) bool { return actions[i].ID < actions[j].ID })
		if b, _ := json.Marshal(actions); len(b) > 0 {
			rows = append(rows, kv{name: "actions", digest: cats.Actions.Digest, json: b})
		}
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the local sqlite state: favorite conversations, hidden
// conversations, and the last-viewed conversation per account.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the local state database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %v", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS favorites (
		conversation_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		added_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS hidden (
		conversation_id TEXT PRIMARY KEY,
		hidden_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS last_viewed (
		account_id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		viewed_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %v", err)
	}
	return nil
}

// Favorite is a starred conversation.
type Favorite struct {
	ConversationID string
	Name           string
	AddedAt        int64
}

// AddFavorite stars a conversation. Re-adding updates the stored name.
func (s *Store) AddFavorite(conversationID, name string) error {
	_, err := s.db.Exec(`
		INSERT INTO favorites (conversation_id, name, added_at) VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET name = excluded.name
	`, conversationID, name, time.Now().Unix())
	return err
}

// RemoveFavorite unstars a conversation.
func (s *Store) RemoveFavorite(conversationID string) error {
	result, err := s.db.Exec(`DELETE FROM favorites WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFavorites returns starred conversations, oldest star first.
func (s *Store) ListFavorites() ([]Favorite, error) {
	rows, err := s.db.Query(`
		SELECT conversation_id, name, added_at FROM favorites ORDER BY added_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var favorites []Favorite
	for rows.Next() {
		var f Favorite
		if err := rows.Scan(&f.ConversationID, &f.Name, &f.AddedAt); err != nil {
			return nil, err
		}
		favorites = append(favorites, f)
	}
	return favorites, rows.Err()
}

// IsFavorite reports whether a conversation is starred.
func (s *Store) IsFavorite(conversationID string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM favorites WHERE conversation_id = ?`, conversationID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// HideConversation marks a conversation hidden from listings.
func (s *Store) HideConversation(conversationID string) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO hidden (conversation_id, hidden_at) VALUES (?, ?)
	`, conversationID, time.Now().Unix())
	return err
}

// UnhideConversation removes the hidden mark.
func (s *Store) UnhideConversation(conversationID string) error {
	result, err := s.db.Exec(`DELETE FROM hidden WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListHidden returns the hidden conversation ids.
func (s *Store) ListHidden() ([]string, error) {
	rows, err := s.db.Query(`SELECT conversation_id FROM hidden ORDER BY hidden_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetLastViewed records the conversation an account viewed last.
func (s *Store) SetLastViewed(accountID, conversationID string) error {
	_, err := s.db.Exec(`
		INSERT INTO last_viewed (account_id, conversation_id, viewed_at) VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			conversation_id = excluded.conversation_id,
			viewed_at = excluded.viewed_at
	`, accountID, conversationID, time.Now().Unix())
	return err
}

// LastViewed returns the conversation an account viewed last.
func (s *Store) LastViewed(accountID string) (string, error) {
	var conversationID string
	err := s.db.QueryRow(`
		SELECT conversation_id FROM last_viewed WHERE account_id = ?
	`, accountID).Scan(&conversationID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return conversationID, nil
}

package browser

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"database/sql"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/pbkdf2"
)

func encryptV10(t *testing.T, value string) []byte {
	t.Helper()
	key := pbkdf2.Key([]byte(chromePassword), []byte(chromeSalt), chromeIterations, chromeKeyLength, sha1.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}

	padding := aes.BlockSize - len(value)%aes.BlockSize
	padded := append([]byte(value), bytes.Repeat([]byte{byte(padding)}, padding)...)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, chromeIV).CryptBlocks(ciphertext, padded)
	return append([]byte("v10"), ciphertext...)
}

func newCookieStore(t *testing.T) (string, *sql.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Cookies")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE cookies (
			name TEXT,
			value TEXT,
			encrypted_value BLOB,
			host_key TEXT
		)
	`)
	if err != nil {
		t.Fatal(err)
	}
	return path, db
}

func insertCookie(t *testing.T, db *sql.DB, name, value string, encrypted []byte, host string) {
	t.Helper()
	if _, err := db.Exec(
		`INSERT INTO cookies (name, value, encrypted_value, host_key) VALUES (?, ?, ?, ?)`,
		name, value, encrypted, host,
	); err != nil {
		t.Fatal(err)
	}
}

func TestGoogleCookiesPlaintext(t *testing.T) {
	path, db := newCookieStore(t)
	insertCookie(t, db, "SID", "sid-value", nil, ".google.com")
	insertCookie(t, db, "HSID", "hsid-value", nil, ".google.com")

	cookies, err := NewReader(path).GoogleCookies()
	if err != nil {
		t.Fatalf("GoogleCookies() error = %v", err)
	}
	if cookies["SID"] != "sid-value" || cookies["HSID"] != "hsid-value" {
		t.Errorf("cookies = %v", cookies)
	}
}

func TestGoogleCookiesDecryptsV10(t *testing.T) {
	path, db := newCookieStore(t)
	insertCookie(t, db, "SAPISID", "", encryptV10(t, "secret-value"), ".google.com")

	cookies, err := NewReader(path).GoogleCookies()
	if err != nil {
		t.Fatalf("GoogleCookies() error = %v", err)
	}
	if cookies["SAPISID"] != "secret-value" {
		t.Errorf("SAPISID = %q, want secret-value", cookies["SAPISID"])
	}
}

func TestGoogleCookiesSkipsUndecryptable(t *testing.T) {
	path, db := newCookieStore(t)
	insertCookie(t, db, "SID", "", []byte("v11keyring-protected"), ".google.com")
	insertCookie(t, db, "HSID", "plain", nil, ".google.com")

	cookies, err := NewReader(path).GoogleCookies()
	if err != nil {
		t.Fatalf("GoogleCookies() error = %v", err)
	}
	if _, ok := cookies["SID"]; ok {
		t.Error("keyring-protected cookie should be skipped, not failed")
	}
	if cookies["HSID"] != "plain" {
		t.Errorf("HSID = %q, want plain", cookies["HSID"])
	}
}

func TestGoogleCookiesDomainPreference(t *testing.T) {
	path, db := newCookieStore(t)
	// OSID exists on both hosts; the chat host wins regardless of order.
	insertCookie(t, db, "OSID", "osid-google", nil, ".google.com")
	insertCookie(t, db, "OSID", "osid-chat", nil, "chat.google.com")
	// Everything else prefers .google.com.
	insertCookie(t, db, "SID", "sid-chat", nil, "chat.google.com")
	insertCookie(t, db, "SID", "sid-google", nil, ".google.com")

	cookies, err := NewReader(path).GoogleCookies()
	if err != nil {
		t.Fatalf("GoogleCookies() error = %v", err)
	}
	if cookies["OSID"] != "osid-chat" {
		t.Errorf("OSID = %q, want osid-chat", cookies["OSID"])
	}
	if cookies["SID"] != "sid-google" {
		t.Errorf("SID = %q, want sid-google", cookies["SID"])
	}
}

func TestRequiredCookiesMissing(t *testing.T) {
	path, db := newCookieStore(t)
	insertCookie(t, db, "SID", "sid-value", nil, ".google.com")

	if _, err := NewReader(path).RequiredCookies(); err == nil {
		t.Fatal("RequiredCookies() should fail when cookies are missing")
	}
}

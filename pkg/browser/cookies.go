package browser

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/pbkdf2"

	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/auth"
)

// ErrNoProfile reports that no Chrome profile directory was found.
var ErrNoProfile = errors.New("no chrome profile found")

// Chrome's cookie encryption parameters on Linux. The password is a
// hardcoded constant unless the OS keyring is in use (version prefix
// v11, which this reader does not decrypt).
const (
	chromePassword   = "peanuts"
	chromeSalt       = "saltysalt"
	chromeIterations = 1
	chromeKeyLength  = 16
)

var chromeIV = bytes.Repeat([]byte{' '}, 16)

// Reader extracts Google cookies from a Chrome profile's cookie store.
type Reader struct {
	dbPath string
}

// DefaultCookiesPath returns the default Chrome cookie store location
// for the current platform.
func DefaultCookiesPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{
			filepath.Join(home, "Library", "Application Support", "Google", "Chrome", "Default", "Cookies"),
		}
	default:
		candidates = []string{
			filepath.Join(home, ".config", "google-chrome", "Default", "Cookies"),
			filepath.Join(home, ".config", "chromium", "Default", "Cookies"),
		}
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", ErrNoProfile
}

// NewReader creates a reader over a specific cookie store file.
func NewReader(dbPath string) *Reader {
	return &Reader{dbPath: dbPath}
}

// GoogleCookies reads all google.com cookies from the store. Chrome
// holds a lock on the live database, so it is copied to a temp file
// before opening. Domain preference follows the sign-in layout: OSID is
// taken from chat.google.com when present, everything else from
// .google.com.
func (r *Reader) GoogleCookies() (map[string]string, error) {
	dbCopy, err := copyToTemp(r.dbPath)
	if err != nil {
		return nil, fmt.Errorf("copying cookie store: %w", err)
	}
	defer os.Remove(dbCopy)

	db, err := sql.Open("sqlite3", dbCopy+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening cookie store: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT name, value, encrypted_value, host_key
		FROM cookies
		WHERE host_key LIKE '%google.com'
	`)
	if err != nil {
		return nil, fmt.Errorf("querying cookies: %w", err)
	}
	defer rows.Close()

	key := pbkdf2.Key([]byte(chromePassword), []byte(chromeSalt), chromeIterations, chromeKeyLength, sha1.New)

	cookies := make(map[string]string)
	domains := make(map[string]string)
	for rows.Next() {
		var name, value, hostKey string
		var encrypted []byte
		if err := rows.Scan(&name, &value, &encrypted, &hostKey); err != nil {
			return nil, fmt.Errorf("scanning cookie row: %w", err)
		}

		if value == "" && len(encrypted) > 0 {
			decrypted, err := decryptValue(encrypted, key)
			if err != nil {
				continue
			}
			value = decrypted
		}
		if value == "" {
			continue
		}
		if !preferDomain(name, hostKey, domains[name]) {
			continue
		}
		cookies[name] = value
		domains[name] = hostKey
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cookies, nil
}

// RequiredCookies extracts just the cookies the session layer needs,
// failing when any are missing.
func (r *Reader) RequiredCookies() (map[string]string, error) {
	all, err := r.GoogleCookies()
	if err != nil {
		return nil, err
	}
	if err := auth.ValidateCookies(all); err != nil {
		return nil, err
	}
	cookies := make(map[string]string, len(auth.RequiredCookies)+1)
	for _, name := range auth.RequiredCookies {
		cookies[name] = all[name]
	}
	if v, ok := all[auth.SigningCookie]; ok {
		cookies[auth.SigningCookie] = v
	}
	return cookies, nil
}

// preferDomain decides whether a cookie from host should replace the one
// already taken from current.
func preferDomain(name, host, current string) bool {
	if current == "" {
		return true
	}
	if name == "OSID" {
		return host == "chat.google.com"
	}
	return host == ".google.com"
}

// decryptValue decrypts a v10-prefixed cookie value (AES-128-CBC with
// the derived key). v11 values live behind the OS keyring and are
// rejected.
func decryptValue(encrypted, key []byte) (string, error) {
	if len(encrypted) < 3 {
		return "", errors.New("encrypted value too short")
	}
	prefix := string(encrypted[:3])
	if prefix != "v10" {
		return "", fmt.Errorf("unsupported encryption prefix %q", prefix)
	}
	ciphertext := encrypted[3:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", errors.New("ciphertext is not block aligned")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, chromeIV).CryptBlocks(plaintext, ciphertext)

	padding := int(plaintext[len(plaintext)-1])
	if padding < 1 || padding > aes.BlockSize || padding > len(plaintext) {
		return "", errors.New("bad padding")
	}
	return string(plaintext[:len(plaintext)-padding]), nil
}

func copyToTemp(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "cookies-*.sqlite")
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

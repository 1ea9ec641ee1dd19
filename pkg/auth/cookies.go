package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// The five cookies the service requires on every request. SAPISID is not
// required but, when present, serves as the signing secret for the
// signature authorization header.
var RequiredCookies = []string{"SID", "HSID", "SSID", "OSID", "COMPASS"}

// SigningCookie names the cookie whose value is the per-request signing
// secret.
const SigningCookie = "SAPISID"

const cookiesCacheFile = "cached_cookies.json"

// ValidateCookies checks that all required cookies are present.
func ValidateCookies(cookies map[string]string) error {
	var missing []string
	for _, name := range RequiredCookies {
		if cookies[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return authErr(fmt.Sprintf("missing required cookies: %s", strings.Join(missing, ", ")), ErrMissingCookies)
	}
	return nil
}

// BuildCookieHeader renders the cookie map as a Cookie header value.
// Names are sorted so the header is deterministic.
func BuildCookieHeader(cookies map[string]string) string {
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+cookies[name])
	}
	return strings.Join(pairs, "; ")
}

// LoadCachedCookies reads a manually provided cookie map from
// cached_cookies.json in the cache directory.
func LoadCachedCookies(cacheDir string) (map[string]string, error) {
	path := filepath.Join(cacheDir, cookiesCacheFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, authErr("no cached cookies at "+path, ErrMissingCookies)
		}
		return nil, fmt.Errorf("reading cookie cache: %w", err)
	}

	var cookies map[string]string
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("parsing cookie cache: %w", err)
	}
	if err := ValidateCookies(cookies); err != nil {
		return nil, err
	}
	return cookies, nil
}

// SaveCachedCookies writes the cookie map to cached_cookies.json so the
// next run can skip browser extraction.
func SaveCachedCookies(cacheDir string, cookies map[string]string) error {
	if err := os.MkdirAll(cacheDir, 0o700); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	data, err := json.Marshal(cookies)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cacheDir, cookiesCacheFile), data, 0o600)
}

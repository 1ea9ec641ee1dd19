package auth

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"time"
)

const (
	// DefaultBaseURL is the service root every request is issued against.
	DefaultBaseURL = "https://chat.google.com/u/0"

	// DefaultUserAgent is the fixed browser identity. The service rejects
	// unfamiliar user agents on the bootstrap path.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"

	// DefaultOrigin is the origin baked into the signature digest and the
	// bootstrap referer.
	DefaultOrigin = "https://mail.google.com"

	bootstrapPath = "/mole/world"
)

// wizDataPattern locates the embedded bootstrap JSON blob inside the
// HTML/script body returned by the bootstrap endpoint.
var wizDataPattern = regexp.MustCompile(`(?s)>window\.WIZ_global_data = ({.+?});</script>`)

// Field names inside the bootstrap blob. Obfuscated by the service's
// build pipeline but stable across releases.
const (
	wizTokenField     = "SMqcke"
	wizSessionField   = "FdrFJe"
	wizSignedOutField = "qwAQke"
	wizSignedOutValue = "AccountsSignInUi"
)

// Config holds session manager configuration.
type Config struct {
	BaseURL    string
	UserAgent  string
	CacheDir   string
	HTTPClient *http.Client
}

// DefaultConfig returns the default session configuration. CacheDir
// defaults to the current directory.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: DefaultUserAgent,
		CacheDir:  ".",
	}
}

// Manager owns the session state: cookies, the cached token, and the
// signing secret. Token state is mutated only by Authenticate and
// Invalidate; everything else reads it.
type Manager struct {
	config     *Config
	httpClient *http.Client
	now        func() time.Time

	cookieHeader  string
	signingSecret string

	mu         sync.RWMutex
	token      string
	sessionID  string
	worldBody  string
	acquiredAt time.Time
}

// NewManager creates a session manager from browser-extracted cookies.
// Fails with an AuthError when a required cookie is absent.
func NewManager(cookies map[string]string, config *Config) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.CacheDir == "" {
		config.CacheDir = "."
	}

	if err := ValidateCookies(cookies); err != nil {
		return nil, err
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	// The bootstrap fetch must observe redirects rather than follow them:
	// a redirect means the browser session expired.
	noRedirect := *httpClient
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Manager{
		config:        config,
		httpClient:    &noRedirect,
		now:           time.Now,
		cookieHeader:  BuildCookieHeader(cookies),
		signingSecret: cookies[SigningCookie],
	}, nil
}

// CookieHeader returns the Cookie header value for outbound requests.
func (m *Manager) CookieHeader() string {
	return m.cookieHeader
}

// Token returns the cached token, or "" before authentication.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// SessionID returns the optional session identifier from the bootstrap
// blob.
func (m *Manager) SessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}

// WorldBody returns the raw bootstrap response body. Collaborators mine
// it for the initial conversation roster.
func (m *Manager) WorldBody() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.worldBody
}

// Authenticate ensures a valid token is cached. A non-expired token is
// never re-fetched unless forceRefresh is set. The disk cache is
// consulted before the network.
func (m *Manager) Authenticate(ctx context.Context, forceRefresh bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !forceRefresh {
		if m.token != "" && now.Sub(m.acquiredAt) < tokenTTL {
			return nil
		}
		if cache := loadAuthCache(m.config.CacheDir, now); cache != nil {
			m.token = cache.XSRFToken
			m.sessionID = cache.SessionID
			m.worldBody = cache.MoleWorldBody
			m.acquiredAt = time.UnixMilli(cache.CachedAt)
			return nil
		}
	}

	token, sessionID, body, err := m.bootstrapFetch(ctx)
	if err != nil {
		return err
	}

	m.token = token
	m.sessionID = sessionID
	m.worldBody = body
	m.acquiredAt = now

	cache := &authCache{
		XSRFToken:     token,
		SessionID:     sessionID,
		MoleWorldBody: body,
		CachedAt:      now.UnixMilli(),
	}
	if err := saveAuthCache(m.config.CacheDir, cache); err != nil {
		// Non-fatal: the in-memory token is valid either way.
		log.Printf("⚠️  Failed to cache auth state: %v", err)
	}
	return nil
}

// Invalidate clears the cached token state in memory and on disk. The
// cookie secret is kept: invalidation targets the token, not the
// browser session.
func (m *Manager) Invalidate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = ""
	m.sessionID = ""
	m.worldBody = ""
	m.acquiredAt = time.Time{}
	return deleteAuthCache(m.config.CacheDir)
}

// bootstrapFetch performs the bootstrap GET and extracts the token from
// the embedded blob. Caller holds m.mu.
func (m *Manager) bootstrapFetch(ctx context.Context) (token, sessionID, body string, err error) {
	params := url.Values{
		"origin": {DefaultOrigin},
		"shell":  {"9"},
		"hl":     {"en"},
		"wfi":    {"gtn-roster-iframe-id"},
		"hs":     {`["h_hs",null,null,[1,0],null,null,"gmail.pinto-server_20230730.06_p0",1,null,[15,38,36,35,26,30,41,18,24,11,21,14,6],null,null,"3Mu86PSulM4.en..es5",0,null,null,[0]]`},
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet,
		m.config.BaseURL+bootstrapPath+"?"+params.Encode(), nil)
	if err != nil {
		return "", "", "", fmt.Errorf("building bootstrap request: %w", err)
	}
	request.Header.Set("Cookie", m.cookieHeader)
	request.Header.Set("User-Agent", m.config.UserAgent)
	request.Header.Set("Referer", DefaultOrigin+"/")

	response, err := m.httpClient.Do(request)
	if err != nil {
		return "", "", "", fmt.Errorf("bootstrap fetch: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 300 && response.StatusCode < 400 {
		location := response.Header.Get("Location")
		return "", "", "", authErr(fmt.Sprintf("bootstrap redirected to %.100s (browser session expired)", location), ErrSignedOut)
	}
	if response.StatusCode != http.StatusOK {
		return "", "", "", authErr(fmt.Sprintf("bootstrap returned status %d", response.StatusCode), nil)
	}

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return "", "", "", fmt.Errorf("reading bootstrap body: %w", err)
	}

	match := wizDataPattern.FindSubmatch(raw)
	if match == nil {
		return "", "", "", authErr("no bootstrap data blob in response", ErrNoToken)
	}

	var blob map[string]any
	if err := json.Unmarshal(match[1], &blob); err != nil {
		return "", "", "", authErr("bootstrap data blob is not valid JSON", err)
	}

	if blob[wizSignedOutField] == wizSignedOutValue {
		return "", "", "", authErr("not signed in: bootstrap served the sign-in page", ErrSignedOut)
	}

	token, _ = blob[wizTokenField].(string)
	if token == "" {
		return "", "", "", authErr("bootstrap blob has no token field", ErrNoToken)
	}
	sessionID, _ = blob[wizSessionField].(string)

	return token, sessionID, string(raw), nil
}

// Signature computes the per-request authorization value: the timestamp,
// secret, and origin are digested together, and the timestamp rides
// along in clear so the server can bound freshness. Callers must pass
// the current time; a cached signature goes stale.
func Signature(secret, origin string, nowEpochSeconds int64) string {
	digest := sha1.Sum([]byte(fmt.Sprintf("%d %s %s", nowEpochSeconds, secret, origin)))
	return fmt.Sprintf("SAPISIDHASH %d_%x", nowEpochSeconds, digest)
}

// SignatureHeader returns the Authorization header value for signed
// endpoints, using the signing cookie and the current clock.
func (m *Manager) SignatureHeader(origin string) (string, error) {
	if m.signingSecret == "" {
		return "", authErr("no "+SigningCookie+" cookie available for signing", ErrMissingCookies)
	}
	if origin == "" {
		origin = DefaultOrigin
	}
	return Signature(m.signingSecret, origin, m.now().Unix()), nil
}

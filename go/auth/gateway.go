// Package auth guards the mail and web surfaces: bcrypt credential
// checks for the mail server's auth endpoint, opaque session tokens for
// the web side, and one-shot student registration.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	zxcvbn "github.com/ccojocar/zxcvbn-go"
	"github.com/hashicorp/golang-lru/v2/expirable"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/patchbay/patchbay/go/store"
)

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = 180 * time.Minute

// ErrUnknownStudent reports a registration for a student ID that does
// not exist, or was already claimed.
var ErrUnknownStudent = errors.New("unknown or already registered student id")

// Gateway performs credential and session checks against the roster.
type Gateway struct {
	Store *store.Store
	TTL   time.Duration
	// MinScore is the zxcvbn strength floor for generated passwords.
	MinScore int

	// cache remembers recent successful checks so a mail client opening
	// several connections per second does not pay bcrypt each time.
	cache *expirable.LRU[string, bool]
}

func NewGateway(s *store.Store, ttl time.Duration) *Gateway {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Gateway{
		Store:    s,
		TTL:      ttl,
		MinScore: 3,
		cache:    expirable.NewLRU[string, bool](256, nil, 2*time.Second),
	}
}

// Validate checks a username/password pair. Users with a nil password
// hash are unregistered placeholders and never validate.
func (g *Gateway) Validate(username, password string) bool {
	var key = credKey(username, password)
	if ok, hit := g.cache.Get(key); hit && ok {
		return true
	}

	var user, err = g.Store.LookupUser(username)
	if err != nil {
		log.WithFields(log.Fields{"user": username, "err": err}).Error("roster lookup failed")
		return false
	}
	if user == nil || user.PwdHash == nil {
		return false
	}
	if bcrypt.CompareHashAndPassword([]byte(*user.PwdHash), []byte(password)) != nil {
		return false
	}
	g.cache.Add(key, true)
	return true
}

func credKey(username, password string) string {
	var sum = sha256.Sum256([]byte(username + "\x00" + password))
	return hex.EncodeToString(sum[:])
}

// Login replaces the user's session with a fresh token. At most one
// live session per user.
func (g *Gateway) Login(username string) (string, error) {
	var raw = make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	var token = hex.EncodeToString(raw)

	var err = g.Store.ReplaceSession(store.Session{
		Token:    token,
		Username: username,
		Expiry:   time.Now().Add(g.TTL).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("storing session: %w", err)
	}
	return token, nil
}

// SessionFromToken resolves a cookie token to its username, sweeping
// the row if it has expired.
func (g *Gateway) SessionFromToken(token string) (string, error) {
	var sess, err = g.Store.SessionByToken(token)
	if err != nil || sess == nil {
		return "", err
	}
	if sess.Expiry <= time.Now().Unix() {
		if err = g.Store.DeleteSession(token); err != nil {
			return "", err
		}
		return "", nil
	}
	return sess.Username, nil
}

// Logout discards a session token.
func (g *Gateway) Logout(token string) error {
	return g.Store.DeleteSession(token)
}

// Register claims the roster row holding studentID and returns the
// username with a freshly generated password. The claim is one-shot:
// a second attempt for the same ID fails.
func (g *Gateway) Register(studentID string) (username, password string, err error) {
	if password, err = g.generatePassword(); err != nil {
		return "", "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hashing password: %w", err)
	}

	user, err := g.Store.ClaimRegistration(studentID, string(hash))
	if err != nil {
		return "", "", err
	}
	if user == nil {
		return "", "", ErrUnknownStudent
	}
	log.WithField("user", user.Username).Info("student registered")
	return user.Username, password, nil
}

// generatePassword draws random passwords until one clears the zxcvbn
// strength floor.
func (g *Gateway) generatePassword() (string, error) {
	for {
		var raw = make([]byte, 12)
		if _, err := rand.Read(raw); err != nil {
			return "", fmt.Errorf("generating password: %w", err)
		}
		var password = hex.EncodeToString(raw)
		if zxcvbn.PasswordStrength(password, nil).Score >= g.MinScore {
			return password, nil
		}
	}
}

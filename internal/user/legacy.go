// AngelaMos | 2026
// legacy.go

package user

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"github.com/dashtv/streaming-gateway/internal/filelock"
)

// LegacyUser is an account from the pre-unification iptv-users.json
// file, consulted read-only when a username is missing from users.json.
type LegacyUser struct {
	Username string   `json:"username"`
	Name     string   `json:"name"`
	Tier     Tier     `json:"tier"`
	Status   string   `json:"status"`
	Package  []string `json:"package"`
}

type legacyFile struct {
	Users map[string]*LegacyUser `json:"users"`
}

// LegacyStore holds the legacy user map. It never writes the file.
type LegacyStore struct {
	path string

	mu    sync.RWMutex
	users map[string]*LegacyUser
}

func NewLegacyStore(path string) *LegacyStore {
	return &LegacyStore{
		path:  path,
		users: make(map[string]*LegacyUser),
	}
}

// Load reads the legacy file if present. A missing or corrupt file is
// logged and treated as empty; legacy lookup is best-effort.
func (l *LegacyStore) Load(ctx context.Context, locks *filelock.Locker) {
	if l.path == "" {
		return
	}

	var parsed legacyFile
	err := locks.WithLock(ctx, l.path, func() error {
		raw, err := os.ReadFile(l.path)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &parsed)
	})
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("legacy user file unreadable", "path", l.path, "error", err)
		}
		return
	}

	l.mu.Lock()
	l.users = parsed.Users
	if l.users == nil {
		l.users = make(map[string]*LegacyUser)
	}
	// Backfill the map key as the username here, while nothing else can
	// hold a reference; entries are read-shared after Load.
	for username, u := range l.users {
		if u != nil && u.Username == "" {
			u.Username = username
		}
	}
	l.mu.Unlock()

	slog.Info("legacy users loaded", "count", len(parsed.Users))
}

// User returns the legacy account for username, or nil. Entries are
// immutable after Load, so concurrent readers share them safely.
func (l *LegacyStore) User(username string) *LegacyUser {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.users[username]
}

// Tier returns the legacy user's tier, or empty when the user is
// missing or not active.
func (l *LegacyStore) Tier(username string) Tier {
	u := l.User(username)
	if u == nil || u.Status != StatusActive {
		return ""
	}
	return u.Tier
}

// AngelaMos | 2026
// legacy_test.go

package user

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dashtv/streaming-gateway/internal/filelock"
)

func loadLegacy(t *testing.T, content string) *LegacyStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "iptv-users.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	ls := NewLegacyStore(path)
	ls.Load(context.Background(), filelock.New())
	return ls
}

func TestLegacyUsernameBackfilledAtLoad(t *testing.T) {
	ls := loadLegacy(t, `{"users":{
		"mamadou": {"name":"Mamadou","tier":"STANDARD","status":"active"},
		"binta":   {"username":"binta","name":"Binta","tier":"BASIC","status":"active"}
	}}`)

	for _, username := range []string{"mamadou", "binta"} {
		u := ls.User(username)
		if u == nil {
			t.Fatalf("User(%q) = nil", username)
		}
		if u.Username != username {
			t.Errorf("User(%q).Username = %q", username, u.Username)
		}
	}
}

func TestLegacyConcurrentLookups(t *testing.T) {
	ls := loadLegacy(t, `{"users":{
		"mamadou": {"name":"Mamadou","tier":"STANDARD","status":"active"}
	}}`)

	// Lookups on the hot auth path must be read-only; run them in
	// parallel so the race detector can verify that.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				u := ls.User("mamadou")
				if u == nil || u.Username != "mamadou" {
					t.Error("lookup returned wrong user")
					return
				}
				if ls.Tier("mamadou") != TierStandard {
					t.Error("tier lookup mismatch")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestLegacyMissingFileIsEmpty(t *testing.T) {
	ls := NewLegacyStore(filepath.Join(t.TempDir(), "absent.json"))
	ls.Load(context.Background(), filelock.New())

	if u := ls.User("anyone"); u != nil {
		t.Errorf("User() = %+v, want nil", u)
	}
	if tier := ls.Tier("anyone"); tier != "" {
		t.Errorf("Tier() = %q, want empty", tier)
	}
}

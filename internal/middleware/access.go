// AngelaMos | 2026
// access.go

package middleware

import (
	"log/slog"
	"net/http"

	"github.com/dashtv/streaming-gateway/internal/core"
	"github.com/dashtv/streaming-gateway/internal/user"
)

// categoryMap translates content routes onto package category ids.
var categoryMap = map[string]string{
	"vod":       "french",
	"movies":    "premium",
	"series":    "kdrama",
	"live":      "livetv",
	"livetv":    "livetv",
	"sports":    "sports",
	"french":    "french",
	"nollywood": "nollywood",
	"kdrama":    "kdrama",
	"kids":      "kids",
	"music":     "music",
}

// requestUsername reads the caller's identity from the X-Username
// header, falling back to the username query parameter for players that
// cannot set headers.
func requestUsername(r *http.Request) string {
	if u := r.Header.Get("X-Username"); u != "" {
		return u
	}
	return r.URL.Query().Get("username")
}

// RequireAuth resolves the caller to an active account and attaches it
// to the request context. Accounts missing from the unified store fall
// back to the legacy user file.
func RequireAuth(store *user.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username := requestUsername(r)
			if username == "" {
				core.JSONError(w, core.UnauthorizedError(
					"Please provide username in X-Username header or query param",
				))
				return
			}

			var id core.Identity

			if u := store.User(username); u != nil {
				if u.Status != user.StatusActive {
					denyInactive(w, u)
					return
				}
				id = core.Identity{
					Username: u.Username,
					Name:     u.Name,
					Tier:     string(u.Tier),
					Status:   u.Status,
					Balance:  u.Wallet.Balance,
				}
			} else if legacy := store.LegacyUser(username); legacy != nil {
				if legacy.Status != user.StatusActive {
					core.JSONError(w, core.ForbiddenError(
						"Your account has been suspended. Please contact support.",
					))
					return
				}
				id = core.Identity{
					Username: username,
					Name:     legacy.Name,
					Tier:     string(legacy.Tier),
					Status:   legacy.Status,
					Legacy:   true,
				}
			} else {
				slog.Warn("authentication failed, user not found",
					"username", username,
				)
				core.JSONError(w, core.UnauthorizedError("User not found"))
				return
			}

			next.ServeHTTP(w, r.WithContext(
				core.WithIdentity(r.Context(), id),
			))
		})
	}
}

func denyInactive(w http.ResponseWriter, u *user.User) {
	message := "Your account has been suspended. Please contact support."
	if u.Status == user.StatusSuspended {
		message = "Your account is suspended due to insufficient balance. " +
			"Please top up your wallet."
	}

	slog.Warn("authentication failed, account not active",
		"username", u.Username,
		"status", u.Status,
	)

	appErr := core.ForbiddenError(message).
		WithDetail("status", u.Status).
		WithDetail("walletBalance", u.Wallet.Balance)
	core.JSONError(w, appErr)
}

// RequirePackageAccess gates a content category behind the caller's
// package. Must run after RequireAuth.
func RequirePackageAccess(
	store *user.Store,
	category string,
) func(http.Handler) http.Handler {
	required := categoryMap[category]
	if required == "" {
		required = category
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := core.IdentityFromContext(r.Context())
			if id.Username == "" {
				core.InternalServerError(w, core.ErrUnauthorized)
				return
			}

			// Legacy accounts predate per-category packages; their tier
			// already gated them at login.
			if id.Legacy {
				next.ServeHTTP(w, r)
				return
			}

			decision := store.ValidateStreamAccess(id.Username, required)
			if !decision.Allowed {
				slog.Warn("package access denied",
					"username", id.Username,
					"tier", id.Tier,
					"category", category,
				)
				core.JSONError(w, accessError(decision))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// accessError maps a denial onto the wire error contract. The machine
// code plus actionable hints (requiredAction, upgradeUrl) let players
// recover without parsing prose.
func accessError(d user.AccessDecision) *core.AppError {
	status := http.StatusForbidden
	if d.Code == core.CodeUserNotFound {
		status = http.StatusUnauthorized
	}

	appErr := core.NewAppError(status, d.Code, d.Message)
	if d.RequiredAction != "" {
		appErr.WithDetail("requiredAction", d.RequiredAction)
	}
	if d.CurrentTier != "" {
		appErr.WithDetail("currentTier", d.CurrentTier)
	}
	if d.RequiredCategory != "" {
		appErr.WithDetail("requiredCategory", d.RequiredCategory)
	}
	if d.UpgradeURL != "" {
		appErr.WithDetail("upgradeUrl", d.UpgradeURL)
	}
	return appErr
}

// RequireTier gates an endpoint behind a minimum tier. Unknown users
// default to BASIC rather than being rejected, so BASIC-level content
// stays reachable without an account record.
func RequireTier(
	store *user.Store,
	minTier user.Tier,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username := requestUsername(r)
			if username == "" {
				core.JSONError(w, core.UnauthorizedError(
					"Please provide username in X-Username header or query param",
				))
				return
			}

			tier := userTier(store, username)
			if tier == "" {
				if user.TierBasic.AtLeast(minTier) {
					next.ServeHTTP(w, r.WithContext(core.WithIdentity(
						r.Context(),
						core.Identity{Username: username, Tier: string(user.TierBasic)},
					)))
					return
				}

				appErr := core.ForbiddenError("User not found or inactive").
					WithDetail("requiredTier", minTier)
				core.JSONError(w, appErr)
				return
			}

			if !tier.AtLeast(minTier) {
				appErr := core.NewAppError(
					http.StatusForbidden,
					core.CodeUpgradeRequired,
					"This content requires "+string(minTier)+" tier. You have "+
						string(tier)+".",
				).
					WithDetail("currentTier", tier).
					WithDetail("requiredTier", minTier)
				core.JSONError(w, appErr)
				return
			}

			next.ServeHTTP(w, r.WithContext(core.WithIdentity(
				r.Context(),
				core.Identity{Username: username, Tier: string(tier)},
			)))
		})
	}
}

// userTier returns the active caller's tier from the unified store,
// then the legacy file; empty when neither knows an active account.
func userTier(store *user.Store, username string) user.Tier {
	if u := store.User(username); u != nil {
		if u.Status != user.StatusActive {
			return ""
		}
		return u.Tier
	}
	if legacy := store.LegacyUser(username); legacy != nil {
		if legacy.Status != user.StatusActive {
			return ""
		}
		return legacy.Tier
	}
	return ""
}

// RequireAdminKey guards admin endpoints with the argon2-hashed key
// from configuration.
func RequireAdminKey(keyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Admin-Key")
			if key == "" {
				core.JSONError(w, core.UnauthorizedError("missing admin key"))
				return
			}

			ok, err := core.VerifyAdminKey(key, keyHash)
			if err != nil || !ok {
				slog.Warn("admin key rejected", "remote", r.RemoteAddr)
				core.JSONError(w, core.ForbiddenError("invalid admin key"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Package middleware holds the HTTP middleware that guards the session API: session and
// capability checks, and login rate limiting.
//
// Admin routes require a signed-in session whose role grants the admin capability:
//
//	admin := router.PathPrefix("/admin").Subrouter()
//	admin.Use(middleware.RequireSession(store), middleware.RequireCapability(permissions.CapManageUsers))
//
// Login routes are rate limited per client address. A single workstation uses the
// in-memory RateLimiter; workstations sharing a Redis cache use DistributedRateLimiter so
// the limit holds across them.
package middleware

// Package httputil provides the JSON response helpers, request parsing and base middleware
// of the agent's HTTP API.
//
// Errors are always written as {"error": "...", "code": "..."} so the UI can show the
// message verbatim and branch on the code:
//
//	httputil.WriteErrorCode(w, http.StatusUnauthorized, "invalid_credential", err.Error())
//
// The base middleware is applied outermost first:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(log),
//		httputil.RecoveryMiddleware(log),
//	)(router)
package httputil

// Package api exposes the session store to the desktop UI over loopback HTTP.
//
// Login routes answer with the new session state on success. Failures carry a stable code
// next to the user-facing message:
//
//	POST /session/login {"identifier": "J.Doe", "password": "..."}
//	401 {"error": "invalid credentials", "code": "invalid_credential"}
//
// A login or registration that was accepted but cannot complete yet, because the account
// waits for approval or the registration was kept offline, answers 202.
//
// GET /session/events streams every state change as server-sent events, starting with the
// current state.
package api

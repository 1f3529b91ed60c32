// Package server provides HTTP routing, middleware and the handlers of `spc serve`.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// [BasicRouter] registers method patterns on an [http.ServeMux], e.g. "POST /api/instances/{id}/terminate".
//
// # Authorization
//
// [LoginHandler] redirects GET /login?state=S to the provider's consent page. [CallbackHandler]
// serves GET /callback: it exchanges the code, writes <state>-AccessToken (expiring after the
// configured lifetime) and <state>-RefreshToken to the vault, then redirects to REDIRECT_URL.
// Configured with a fixed state it handles a single callback and reports it on [CallbackHandler.Result],
// which is how `spc auth` runs it.
//
// # Orchestration API
//
// [APIHandler] exposes the workflow host and the counter registry:
//
//	POST /api/orchestrators/{functionName}    start, 202 + status links
//	GET  /api/instances[?status=]             list checkpoints
//	GET  /api/instances/{id}                  checkpoint
//	GET  /api/instances/{id}/history          current generation's events
//	POST /api/instances/{id}/terminate        terminate with ?reason=
//	GET  /api/counters/{state}                counter value
//	POST /api/counters/{state}/reset          reset to zero
//	GET  /api/counters/{state}/history        applied operations, newest first
//
// Errors are JSON objects with an "error" field; sentinel errors map to status codes in errorStatus.
package server

// Package middleware adapts Engine.Authorize to net/http.
//
// Each guard reads the Authorization bearer token, calls Engine.Authorize and
// injects the verified claims into the request context. Two-factor-pending
// tokens are always refused.
package middleware

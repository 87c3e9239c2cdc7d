// Package api exposes the report scheduler over HTTP. It translates requests
// into scheduler and unit registry operations, scopes every report to the
// owner named by the bearer token and maps internal errors to status codes
// without leaking their text.
package api

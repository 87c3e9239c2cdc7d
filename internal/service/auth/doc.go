// Package auth issues and validates the HMAC-signed JWT access tokens that
// identify report owners. The token subject is the owner ID that scopes every
// report query.
package auth

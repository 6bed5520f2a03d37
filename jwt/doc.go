// Package jwt mints and verifies the signed tokens produced by sign-in:
// primary, two-factor-pending and two-factor tokens, plus device-scoped
// remember tokens distinguished by a "remember+jwt" type header.
package jwt

// Package flows contains the sign-in state machine as pure functions over
// dependency structs.
//
// RunSignIn moves a request from anonymous to password-verified and then
// either to authenticated or to a pending factor challenge. RunVerifyFactor
// completes a pending sign-in. RunGenerateChallenge issues a challenge for
// another offered factor while a sign-in is pending.
//
// Flows coordinate the principal provider, password verifier, factor
// providers, token issuer, device store, audit and metrics. They own none of
// them and hold no state between calls. This package must not import the
// root package.
package flows

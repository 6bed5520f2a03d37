// Package goFactor coordinates two-phase sign-in: a password check followed,
// when the principal has enrolled factors, by one second-factor proof.
//
// Engine methods are safe for concurrent use after [Builder.Build]. The engine
// keeps no per-sign-in state in memory. Between the two phases the client
// holds a short-lived two-factor-pending token; pending challenges, signature
// counters and used time steps live in Redis.
//
// # Factors
//
// Each [factor.Kind] is served by one [factor.Provider]:
//
//   - authenticator: time-based one-time codes (factor/authenticator)
//   - webauthn: WebAuthn and migrated U2F credentials (factor/webauthn)
//   - duo: Duo Auth API push, phone and passcode (factor/duo)
//   - duo_legacy and organization_duo: Duo Web signed challenges (factor/duoweb)
//   - yubikey: Yubico OTP (factor/yubikey)
//   - remember: remembered-device tokens (factor/remember)
//
// # Failure behavior
//
// SignIn rejects with [ErrInvalidCredential] and VerifyFactor with
// [ErrFactorRejected], whatever the cause, after Config.SignIn.FailureDelay.
// Causes are visible only through logs, metrics and audit events.
//
// # Devices
//
// A device record is created only after a complete sign-in, never after the
// password phase alone.
package goFactor

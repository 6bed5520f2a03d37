// Package factor defines the second-factor contract shared by every provider
// and by the sign-in coordinator: factor kinds, typed enrollment payloads, the
// principal model and the [Provider] interface.
//
// # Architecture boundaries
//
// This package is a leaf. Provider implementations live in sub-packages
// (authenticator, webauthn, duo, duoweb, yubikey, remember) and import it;
// the root goFactor package re-exports its types.
//
// # What this package must NOT do
//
//   - Perform I/O.
//   - Import goFactor or any provider sub-package.
//   - Represent payloads as untyped maps outside [EncodePayload] and [DecodePayload].
package factor

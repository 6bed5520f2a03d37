// Package webauthn implements the public-key challenge/response factor for
// WebAuthn credentials and legacy U2F credentials migrated into the same
// credential set.
//
// Generate issues assertion options with a fresh 32-byte challenge that is
// stored as a single-use pending challenge. Validate consumes that challenge
// first, then checks client data, the relying-party hash, user presence and
// the signature, and finally advances the credential's signature counter with
// an optimistic Redis transaction. A counter that does not strictly increase
// flags the credential compromised; it is never offered again.
//
// Legacy credentials differ only in key encoding (raw uncompressed P-256
// point) and in the relying-party hash, which is taken over the U2F app id.
package webauthn

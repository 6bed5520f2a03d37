// Package password hashes sign-in passwords with Argon2id and provides
// Argon2Verifier, the default password verifier for the sign-in engine.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters;
// Argon2Verifier re-hashes those after a successful verification when its
// store implements [HashUpdater].
//
// Plaintext passwords and hash parameters are never logged.
package password

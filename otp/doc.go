// Package otp implements the one-time-password primitives used by goGuard MFA:
// an RFC 4648 base32 codec, an RFC 6238 TOTP generator/verifier, and single-use
// backup codes.
//
// # Components
//
//   - [Encode] / [Decode]: unpadded base32 with case-insensitive decoding.
//   - [Generator]: TOTP secret generation, code derivation, window verification,
//     and otpauth provisioning URIs.
//   - [GenerateBackupCodes] / [ConsumeBackupCode]: XXXX-XXXX recovery codes stored
//     as salted SHA-256 digests.
//
// # Architecture boundaries
//
// Everything in this package is pure computation over caller-supplied inputs and
// the system CSPRNG. Persistence, attempt throttling, and replay tracking belong to
// the Engine and its stores.
//
// # What this package must NOT do
//
//   - Import goGuard or any store package.
//   - Compare secret material with non-constant-time equality.
//   - Log secrets, codes, or digests.
package otp

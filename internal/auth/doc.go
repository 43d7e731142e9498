// Package auth decides whether a request may reach an authenticated route.
//
// A Gate combines a VerificationCache with a Verifier. The cache answers
// authoritatively on a hit; on a miss the Verifier makes exactly one call
// to the identity authority and active results are cached. Concurrent
// misses for the same credential and tenant share a single call.
//
// Verification failures are classified as ErrUnreachable, ErrInactive or
// ErrMalformed. The gate maps them to AuthError kinds: inactive and
// malformed credentials are KindUnauthorized, an unreachable authority is
// KindUpstreamUnavailable. Both answer 401 to the client.
package auth

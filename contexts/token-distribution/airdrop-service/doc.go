// Package airdropservice implements the share-based token distribution
// engine for the tokendrop monolith.
//
// The module owns the share, token and interrupted-distribution bookkeeping
// and exposes HTTP command/query handlers plus an outbox relay worker
// entrypoint. Every mutating command has a validate twin with identical
// preconditions and zero side effects, so an upstream approval flow can
// simulate an action before committing to it.
package airdropservice

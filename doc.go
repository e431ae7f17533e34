// Package sessionguard continuously verifies that an authenticated session
// still maps to a valid account, and terminates it exactly once when it does
// not.
//
// Signal model:
//   - The identity provider pushes the current principal (or none) through a
//     principal stream. Every event atomically replaces the previous
//     session's watchers before any new work starts, so signals meant for the
//     old account can never touch the new one.
//   - The profile store pushes record snapshots and a separate deleted-flag
//     feed. The two can disagree transiently because they may ride different
//     consistency paths; both are routed through a single serialized entry
//     point on the orchestrator.
//   - A keep-alive revalidator forces the provider to re-check the principal
//     on an interval, catching provider-side revocation the push feeds never
//     report.
//
// Trust policy:
//   - Explicit moderation flags, soft-delete markers, permission-denied
//     subscription errors, and classified provider revocations are
//     authoritative and terminate immediately.
//   - A replica feed reporting "record missing" is only a suspect signal; it
//     must be confirmed by a strongly-consistent probe, and never inside the
//     grace window that covers record-propagation lag after signup or login.
//   - Transient infra errors are reported to the ErrorSink and otherwise
//     ignored. A false logout costs more than a delayed one.
//
// Termination is an idempotent transition guarded by a per-session generation
// token: sign-out, local state clear, and the entry-flow redirect happen at
// most once per session, and late callbacks from cancelled watchers are
// inert.
package sessionguard

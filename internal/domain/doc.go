// Package domain models flight weather insurance policies and the rules that
// govern them.
//
// # Policy Lifecycle
//
// A policy is created in status "purchased" when a holder pays exactly the
// configured premium. It resolves at most once, moving forward to one of two
// terminal states:
//
//	purchased → paid                 qualifying weather verified, indemnity disbursed
//	purchased → verified_no_payout   weather verified but condition did not qualify
//
// Transitions never run backwards and a resolved policy is never re-resolved.
// Each holder may hold at most one policy; a second purchase by the same
// holder is rejected, mirroring the one-record-per-holder custody model the
// product launched with. The ledger is append-only: resolved policies remain
// visible for audit.
//
// # Money
//
// Amounts are fixed-point integers in micro-units (1 unit = 1,000,000 micros).
// The default premium is 0.01 units and the default indemnity 0.05 units.
// All arithmetic is integer arithmetic; there is no floating-point money.
//
// # Weather Matching
//
// Claim verification correlates a policy with a weather observation for its
// departure city. City names are compared case-insensitively and timestamps
// are compared at UTC calendar-day granularity: an observation any time on the
// same UTC day as the flight date matches, one on the prior or following day
// does not. Exact-timestamp matching would almost never succeed against
// real-world weather reporting resolution.
//
// Condition classification is a pure function over an already-fetched,
// lowercased condition string, decoupled from weather retrieval so the
// decision is deterministic and unit-testable. The qualifying set is
// configuration, not code: the same set drives both verification and payout.
package domain

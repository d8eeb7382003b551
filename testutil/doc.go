// Package testutil provides deterministic helpers for tests and
// examples: a seeded RNG and fake embedding/index collaborators.
package testutil

// Package app wires the donation marketplace core: actor registry, token
// ledger, marketplace coordinator and the guard in front of them, plus the
// event bus they publish to.
package app

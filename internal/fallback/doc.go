// Package fallback runs an ordered list of interchangeable strategies against
// one goal and accepts the first success.
//
// Strategies run strictly sequentially: a later strategy starts only once the
// previous one has succeeded or failed. Each attempt gets its own time budget.
// When every strategy fails, the chain returns an *AllFailedError carrying each
// individual error for diagnostics.
package fallback

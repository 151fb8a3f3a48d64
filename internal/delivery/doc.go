// Package delivery composes remote config initialization, enrichment and the
// transport fallback chain into a single Deliver call.
//
// Deliver never returns an error and never panics. Every failure becomes a
// false result plus a log line, a delivery.failed event and a metric.
package delivery

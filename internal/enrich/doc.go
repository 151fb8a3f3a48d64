// Package enrich collects optional context fields (ip, country, region, city,
// isp) that are appended to outgoing messages.
//
// Collection starts once, in the background, and writes each field of a
// Record exactly once. Readers await the whole record with a single budget and
// render whatever is available; fields still pending are reported as timed
// out. A lookup source that answers fills the fields it reports and marks the
// others Unknown. When every source fails, every field is Failed.
package enrich

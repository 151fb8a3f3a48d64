// Package remoteconfig acquires the delivery credential and destination from
// one of several retrieval mechanisms.
//
// # Sources
//
// Sources are tried in priority order through a fallback chain:
//   - json: plain HTTP GET returning a JSON document
//   - jsonp: HTTP GET with a per-request callback handle, body `<handle>({...})`
//   - file: a local JSON or YAML file
//
// A document that decodes but lacks a credential or destination is an
// ErrConfigInvalid failure for that source; the next source is still tried.
//
// # Initialization
//
// Initializer guarantees that concurrent first callers share one acquisition.
// Ready is final: the config is never refreshed during the process lifetime.
package remoteconfig

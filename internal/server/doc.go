// Package server hosts the radiowave playback API from a single HTTP server.
//
// The server builds a consistent middleware chain of logging, request IDs,
// metrics, rate limiting, CORS, and control-token auth so handlers all share
// common protections and instrumentation.
package server

// Package icecaststub hosts a deterministic HTTP fake of the icecast status
// endpoint for readiness and health tests. The stub can be told to fail a
// number of initial probes, which lets orchestration tests exercise retry
// and backoff behaviour without a real streaming server.
package icecaststub

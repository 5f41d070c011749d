// Package server implements the HTTP API of the clipboard service. It
// wires the routes to the clipboard core, adds the middleware chain
// (request id, access log, security headers, compression, per-route rate
// limits) and exposes health and Prometheus endpoints.
package server

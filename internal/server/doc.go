// Package server implements the demo chat server: a WebSocket bot that
// answers every message on the connection it arrived on, a JSON echo
// endpoint, the built-in web client, and health and metrics endpoints.
//
// The implementation is split into files for configuration, the session hub,
// sessions, routing, middleware, and HTTP handlers.
package server

// Package httpserver wraps net/http with graceful shutdown, environment
// driven configuration, and probe handlers for liveness and readiness.
package httpserver

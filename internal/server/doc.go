// Package server hosts the shared HTTP client used for every upstream
// fetch: connection pooling, dial/TLS/idle timeouts, and HTTP/2, with no
// overall Client.Timeout since each fetch owns its own deadline.
package server

// Package api exposes the daemon over HTTP: REST endpoints for job and batch
// lifecycle, log fetch, status and health, plus WebSocket progress streams.
// The CLI talks to the daemon exclusively through the Client in this package.
package api

// Command autosub is the CLI for the subtitle pipeline daemon. It submits
// jobs and batches, inspects and manages the queue, streams live progress
// over WebSocket, and fetches daemon logs, all through the HTTP API.
package main

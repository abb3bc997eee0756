// Package app wires configuration, storage, the Riot client, the live-game
// poller, the SSE hub, the scheduler and the HTTP server into one process.
package app

// Package riot is a small client for the Riot spectator-v5 API.
//
// Only the "active game by puuid" endpoint is implemented. Requests share one
// token-bucket limiter so the poller and on-demand resolutions together stay
// under the application key's rate limit.
package riot

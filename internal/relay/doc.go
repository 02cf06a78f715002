// Package relay implements the relay server surface: the websocket endpoint
// carrying the event protocol, the read-only HTTP queries (roster, audit
// log, health, metrics), and the HTTP client the CLI uses against the
// read-only surface.
//
// The relay is trusted for roster distribution and untrusted for content:
// it forwards envelopes without inspecting anything beyond field presence.
package relay

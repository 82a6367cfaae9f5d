// Package feed implements the HTTP client for the childcare activity feed
// API: the two-step login handshake (password, optional MFA code) yielding a
// durable session cookie, guardian student listing and resolution, paginated
// date-windowed activity queries, and raw media downloads.
//
// Interactive input is a capability supplied by the caller through Prompts;
// the client itself never reads from a terminal.
package feed

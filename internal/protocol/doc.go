// ABOUTME: Package documentation for the wire protocol
// ABOUTME: Describes the envelope framing and event validation rules

// Package protocol defines the JSON event protocol spoken between the
// gateway and its websocket clients (visitor widgets and agent dashboards).
//
// Every frame in either direction is an Envelope:
//
//	{"event": "chat_message", "data": {...}}
//
// Inbound envelopes pass through Decode, which maps the event name to a
// typed payload and validates required fields. Decode is the single
// validation boundary: anything it rejects is dropped by the transport
// without reaching the coordinator, so malformed input can never mutate
// state or trigger a broadcast.
//
// The event set is closed. Unknown event names are a decode error, not an
// extension point.
package protocol

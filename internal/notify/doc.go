// Package notify delivers handoff escalation notifications to external
// channels.
//
// The gateway does not speak to email or SMS providers itself; it POSTs a
// small JSON payload to a configured webhook once per escalation and the
// receiver owns fan-out from there. Without a webhook configured the
// escalation is logged, so callers always have a notifier to invoke.
package notify

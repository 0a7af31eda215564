// Package webhooks pushes access change notifications to external endpoints.
//
// # Overview
//
// A Notifier is an audit.Logger: it sits next to the database and structured log
// sinks and forwards the audit events its subscriptions ask for, typically grant,
// revoke and role change events, to a SIEM or chat integration.
//
// # Delivery
//
// Each matching event is POSTed as JSON in its own goroutine. Headers:
//
//	X-EAMS-Event        event type, e.g. authz.permission_grant
//	X-EAMS-Event-ID     delivery envelope ID
//	X-EAMS-Signature    sha256=<hex HMAC of the body>, when a secret is set
//
// Receivers verify the signature with VerifySignature.
//
// # Retry Policy
//
// Failed deliveries are kept in a bounded DeliveryLogStore and retried with
// exponential backoff (1s, 2s, 4s, 8s) by ProcessRetries, which the server runs on
// the jobs scheduler. A delivery fails for good after five attempts.
//
// # Related Packages
//
//   - pkg/audit: event model and sinks
//   - pkg/jobs: retry scheduling
package webhooks

// Package otelsentry bridges OpenTelemetry tracing into the Sentry SDK.
//
// The bridge lets applications instrument with the OpenTelemetry API
// while Sentry remains the backend for both errors and performance
// data. A SpanProcessor mirrors every OTel span into a Sentry span of
// the same identity, and a small set of entry points (WithSpan,
// StartInactiveSpan, ActiveSpan) expose the mirrored Sentry span to
// callers that still expect Sentry's span model.
//
// # Guarantees
//
//   - One-to-one lifetime: a bridged Sentry span exists exactly as long
//     as a lookup by its OTel span ID succeeds.
//   - Exactly-once end: spans started by WithSpan or GoSpan always end
//     exactly once, on normal return, error, or panic.
//   - Transparency: the bridge never swallows or transforms caller
//     errors; its only side effect is span status marking.
//
// When tracing is disabled on the Sentry client, every entry point
// degenerates to a nil-span pass-through and no OTel spans are created.
//
// The bridge does not reimplement the OTel span model, Sentry's
// transport, or any HTTP server lifecycle; those remain the job of the
// wrapped SDKs.
package otelsentry

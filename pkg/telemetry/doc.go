// telemetry provides traces and metrics for release pipeline runs and
// their stages, plus contextual, leveled logging.
// Supported metrics includes:
// - rps(*_started_total)
// - success/error count(*_handled_total)
// - latency histogram(*_handling_seconds_bucket)
package telemetry

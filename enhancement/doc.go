// Package enhancement manages asynchronous batch jobs that regenerate chunk
// summaries with a stronger model.
//
// A job is submitted once per namespace and then driven by status reports
// from the remote batch service, delivered either by polling or by the
// webhook handler. Reports only move a job forward through
//
//	submitted -> validating -> in_progress -> finalizing -> completed
//
// or divert it to failed, expired or cancelled. On completion the result
// artifact is applied to the chunks it names. Enhanced chunks keep their old
// vectors until the reembed pass runs.
package enhancement

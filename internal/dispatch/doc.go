// Package dispatch implements the campaign dispatch pass: quota refresh,
// contiguous recipient distribution across sender accounts, the send loop
// with cooperative cancellation, and the reschedule decision that keeps a
// campaign moving through delayed jobs.
//
// A pass is triggered by a job, never by a resident scheduler. Every
// state change is persisted at the moment it happens, so a crashed pass
// loses at most the send that was in flight and a re-delivered job simply
// picks up the remaining pending recipients.
package dispatch

// Package reconcile drives scan tasks to a terminal state by polling the
// external scanner on a timer.
//
// Each tick loads the in-progress tasks that have an external id and
// reconciles them concurrently with a bounded fan-out. A task is moved to
// a terminal status with a conditional store update, and only the caller
// whose update applied performs the side effects that follow: fetching
// the result artifact, issuing a download link and emailing the owner.
// This keeps report delivery at most once per task even when ticks
// overlap or several replicas run the loop.
//
// Side effects after a transition are never retried. A failed artifact
// fetch or mail send is logged and the task stays succeeded.
package reconcile

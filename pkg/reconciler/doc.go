/*
Package reconciler cleans up after rollouts that never reached a terminal
phase.

A rollout runs inside the wharf process. If that process dies between
PREPARING and FINALIZING, the release stays in_progress forever and its
build never leaves pending. The reconciler scans releases every minute and
marks any release still in_progress after the stale window (rollout.staleAfter,
30 minutes by default, counted from its last update) as failed, and marks
its build failed. The release message is left as written; the interruption
is announced as a rollout.failed event carrying "Rollout interrupted".

Releases are re-checked inside the update, so a rollout that finishes
between the listing and the write keeps its status and its build.

Cycles are timed in wharf_reconciliation_duration_seconds and counted in
wharf_reconciliation_cycles_total; each release failed this way increments
wharf_stale_releases_failed_total.
*/
package reconciler

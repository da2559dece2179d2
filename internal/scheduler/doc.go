// Package scheduler is the publish-task poll loop and retry state machine.
//
// Each poll cycle snapshots due tasks, resolves the owning account and
// platform adapter, dispatches the publish call, and applies the retry
// policy to classified failures. Cycles and manual operator actions are
// serialized through one engine lock; an overlapping trigger is skipped,
// never run concurrently.
package scheduler

// Package pipeline implements the Earworm listening pipeline: a task-counted
// audio job queue feeding a recognition worker, a condition-guarded word
// buffer feeding a sliding-window search worker, and the supervisor that owns
// both workers and coordinates shutdown.
//
// Data flows one way: capture → [JobQueue] → recognition → [WordBuffer] →
// search → playback. Control flows through a single set-once [StopSignal]
// that every stage observes; any stage may trip it, and once tripped it never
// clears. Shutdown is cooperative under all three triggers — end-of-stream
// sentinel, mid-stream fault, and external interrupt — and always converges
// on the same drain/join sequence in the parent.
package pipeline

// Package host defines the stack-machine operations the translator emits.
//
// A [Routine] is a flat list of [Operation] values plus the protected regions
// that route host exceptions to handler labels. Operations are deliberately
// small: anything beyond stack shuffling, locals, control flow and exception
// plumbing is an [Invoke] of a named runtime helper.
//
// [Walk] re-derives stack depths from a routine without executing it, which
// is how emitted code is checked against the translator's own stack model.
package host

// Package reminder is the scheduling core: Handler turns chat messages into
// stored tasks, Sweeper delivers them once due.
//
// A task leaves the store only after the chat platform accepted its message
// (or, when max attempts is configured, after it ran out of attempts).
// Failed sends keep the task for the next sweep.
package reminder

// Package pipeline sequences extraction, classification and placement for
// each inbox candidate.
//
// Run reads from the watcher's bounded channel and hands candidates to an
// ants worker pool; a slot semaphore keeps intake blocked while every worker
// is busy, which in turn blocks the watcher. Stages for one file run strictly
// in order and a failure at any stage leaves the file where it was. The
// organizer is the single serialization point for moves.
package pipeline

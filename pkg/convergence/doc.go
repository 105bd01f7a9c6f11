// Package convergence scrolls a lazily loading page until its image set stops
// growing.
//
// A Loop polls a Probe and a Driver on a fixed cadence. Each tick measures the
// document height, scrolls one step, and counts the matched elements. The run
// ends when the expected count is reached, when the scroll distance passes
// the document height and a settle delay shows no further growth, or when the
// maximum duration expires. Transient probe errors skip a tick; a bounded
// number of consecutive failures ends the run as timed out.
//
// Done and TimedOut are terminal. Settling returns to Polling only when the
// document grew during the settle delay and the deadline has not passed.
package convergence

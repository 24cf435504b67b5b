// Package scheduler drives the notification engines.
//
// One loop per process: wait for the ready signal, run a tick, sleep until
// the next activation of the tick schedule. Ticks never overlap.
package scheduler

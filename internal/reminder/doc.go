// Package reminder holds the periodic notification engines: due-date
// reminders, overdue escalation, snoozed reminders and channel digests.
//
// Every engine is driven by the scheduler through Run(ctx, now) and keeps no
// state across ticks other than caches; the durable markers live in storage.
package reminder

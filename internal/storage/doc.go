// Package storage is the relational store behind the notification core.
//
// The core only reads boards and tasks; it owns the dedup markers
// (notification history, channel digest history, guild reminder runs) and
// consumes snoozed reminders. Board/task writes exist for the CRUD layer and
// for test fixtures.
package storage

// Package history records process-variable refreshes.
//
// A Recorder attaches to a variable as an OnRefresh dependent. Every refresh
// stores a Sample in SQLite through Repository and, for numeric values,
// writes an InfluxDB point when a PointWriter is configured. The SQLite
// table gives a local audit trail even when the time-series database is
// unavailable.
package history

// Package joblog stores execution log lines written by handlers and serves
// them back to the coordinator in fragments.
//
// Lines are kept in a GORM-managed table keyed by log id and line number.
// SQLite is the default backend (a file under the executor's log directory);
// a postgres:// DSN selects PostgreSQL. A Janitor prunes lines older than the
// configured retention.
package joblog

// Package database provides connection management, migrations, foreign key
// handling, driver error classification, query logging and metrics hooks,
// configuration types and a logrus-backed logger, built on top of Bun.
package database

// Package repository provides a generic repository abstraction built on Bun
// for CRUD operations, criteria search, pagination, transactions and upsert
// support. Writes run hooks and cascade to dependents inside one
// transaction.
package repository

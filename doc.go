// Package crudkit is a generic repository layer over Bun. Service is the
// entry point: it binds a repository.Repository to the global database set
// up by database.InitDB, while the repository, search and database packages
// can also be used directly.
package crudkit

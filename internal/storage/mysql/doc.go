// Package mysql provides the MySQL backed key/value store used by the registry,
// together with the connection helper and the embedded schema migration runner
// shared with the receipt store.
package mysql

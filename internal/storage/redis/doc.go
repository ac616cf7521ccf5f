// Package redis provides a key/value backend for the registry on top of Redis.
// Batches are committed with MULTI/EXEC so a call's writes land together.
package redis

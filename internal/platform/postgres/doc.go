// Package postgres provides PostgreSQL implementations of the store
// interfaces. The operation store's single-flight guarantee rests on a
// partial unique index over (owner_id, kind) for rows in the running
// status: the database, not application code, arbitrates concurrent
// acquires.
package postgres

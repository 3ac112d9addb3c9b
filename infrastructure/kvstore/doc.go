// Package kvstore provides ports.KVStore backends (an ephemeral in-process
// map, a DynamoDB table and a SQLite database), store middleware for logging
// and retries, and a factory that selects among them.
package kvstore

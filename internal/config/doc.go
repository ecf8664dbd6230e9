// Package config handles configuration loading, parsing, and validation
// from a config file and RELAY_-prefixed environment variables. It provides
// type-safe access to the server, scheduler, schema, database and stream
// settings while keeping configuration details out of the business logic.
package config

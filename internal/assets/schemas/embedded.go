// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time so configuration validation works
// regardless of the working directory or installation location.
package schemasassets

import _ "embed"

// ConfigSchema is the embedded rqlens configuration JSON schema. It validates
// the decoded configuration, so durations appear as integer nanoseconds.
//
//go:embed config.schema.json
var ConfigSchema []byte

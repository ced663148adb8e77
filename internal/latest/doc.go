// Package latest implements the latest-value cache: a side-channel store of
// each device's most recently reported data payload.
//
// The cache is not a source of truth. The hierarchy store writes to it after
// releasing its lock and absorbs any failure; the MQTT telemetry ingester
// writes to it for every accepted report. Readers get either the last entry
// or ErrNotFound.
//
// A Cache composes three parts:
//
//   - Provider: a byte store keyed by string. Implementations exist for
//     Redis (shared, survives restarts), ristretto and bigcache (in-process).
//   - Codec: encodes an Entry as msgpack, CBOR or JSON.
//   - A key namespace and TTL.
//
// Entries that fail to decode are deleted and reported as a miss.
package latest

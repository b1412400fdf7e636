// Package ir provides the roster model and replication operation types for rostersync.
//
// This package contains type definitions and their wire codecs only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Students are correlated by Hashed only, never by plaintext fields
//   - Cells within a student are strictly ascending by Date
//   - Operations are a closed set; every variant implements Operation
//   - JSON tags follow the wire protocol (lowercase, internally tagged by "type")
package ir

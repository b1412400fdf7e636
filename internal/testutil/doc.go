// Package testutil provides deterministic fakes shared by package tests:
// field ciphers, progress and notification recorders, a manual timer and
// fixed id generators.
//
// The fakes satisfy interfaces from other packages structurally and import
// none of them, so any package's tests may use them.
package testutil

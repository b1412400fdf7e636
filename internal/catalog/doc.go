// Package catalog holds the closed message catalogs for the replication
// socket and validates frames against them.
//
// Two catalogs exist, one per direction. A frame is accepted only when its
// tag is registered for the direction it travels and its payload unifies
// with the CUE definition for that tag.
package catalog

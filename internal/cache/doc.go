// Package cache keeps synthesized artifacts so repeated text skips the
// engine. A small in-memory LRU sits in front of a zstd-compressed disk
// store whose index survives restarts.
package cache

// Package model defines the core data structures used throughout
// octatrack-manager.
//
// # Project layout
//
// A project is one directory on the Octatrack's compact flash card. Its
// state splits across 17 files: one project descriptor (global settings,
// sample slot tables, current selection) and 16 bank files.
//
//	ProjectMetadata: the descriptor (one per project path)
//	Bank (A..P): 4 Parts, each with up to 16 Patterns
//	Pattern: 16 Tracks (8 audio + 8 MIDI)
//	Track: up to 64 Steps with locks and conditions
//	SampleSlot: one of 128 Flex or 128 Static entries
//
// # Timestamps
//
// FileTimestamps snapshots the mtimes of all 17 files. The cache layer
// stores a snapshot next to each cached project and compares it against a
// fresh one to decide whether the cached copy can still be trusted.
//
// All types in this package are plain data: they are what the external
// octatool parser emits as JSON and what the cache persists. None of them
// carry behavior beyond small accessors.
package model

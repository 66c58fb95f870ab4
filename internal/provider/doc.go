// Package provider defines the contract for reading Octatrack project data
// and implements it over the external octatool parser binary.
//
// The binary file format of project descriptors and banks is owned entirely
// by octatool; this package only shells out and decodes JSON. Every call
// takes a context, and each invocation builds its own executor and
// subprocess, so calls are safe to run concurrently.
package provider

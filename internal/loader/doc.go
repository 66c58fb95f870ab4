// Package loader implements the progressive project load: a session state
// machine that turns a project path into a populated bank collection with
// minimal time to a usable view.
//
// # Phases
//
// Metadata is fetched first and is fatal on failure. Bank enumeration
// follows; indices with no file on disk complete immediately with no
// backend call. The active bank (the hardware's last selection) is then
// fetched alone so the default view renders first, and the remaining banks
// are fetched in ascending fixed-size concurrent batches, sized by clamping
// the backend's concurrency recommendation into [2, 4].
//
// # Failure tolerance
//
// A single bank failing to parse (for example, written by incompatible
// firmware) is recorded and reported, never fatal; every attempted index
// still counts as loaded so the UI shows a settled state. Only metadata and
// enumeration failures abort a session.
//
// # Supersession
//
// Opening another project (or refreshing) starts a new session. There is no
// request cancellation: in-flight fetches of the old session finish, but
// their completions carry the old session id and are discarded before they
// can touch shared state.
package loader

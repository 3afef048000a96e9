// Package resolve keeps a stored tree in step with live text. The tracker
// localises an edit and shifts the spans behind it; the matcher aligns a
// fresh parse of the affected region against the stale subtree and emits an
// edit script; the reconciler applies scripts whose parse is still current.
package resolve

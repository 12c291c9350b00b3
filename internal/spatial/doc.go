// Package spatial is the ownership layer over the native runtime bindings.
//
// Every native object is held by a *Handle that releases its reference
// exactly once. Shareable resources (devices, HRTFs, serialized objects)
// can be cloned through a native retain and used from several goroutines;
// contexts and effects are move-only. Native status codes surface as *Error
// values that match the Err* sentinels with errors.Is.
package spatial

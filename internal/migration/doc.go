// Package migration orchestrates the download and publish phases and exposes them as the
// download, publish, and run commands.
//
// Each phase opens one authenticated session, processes flows, datasources, and workbooks in
// that order, and reports a PhaseResult whose StatusCode is 1 only for fatal failures such as a
// rejected sign-in. Per-object failures stay in the returned records and the state logs.
package migration

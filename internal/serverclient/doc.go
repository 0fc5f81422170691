// Package serverclient provides a typed client for the analytics server REST API.
//
// It signs in with username/password or personal access token credentials,
// lists flows, datasources, workbooks, and projects page by page, downloads
// content files, lists workbook views, and publishes staged artifacts with
// overwrite semantics. Throttled calls are retried with exponential backoff.
package serverclient

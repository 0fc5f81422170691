// Package download pulls tagged flows, datasources, and workbooks from a source
// site into the staging tree and records one state log row per object.
package download

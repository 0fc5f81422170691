// Package content defines the domain vocabulary shared by the migration
// pipelines: content kinds, listed object descriptors, workbook views,
// projects, and publish requests.
package content

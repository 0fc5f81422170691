// Package statelog reads and writes the per-kind CSV state logs that hand
// migrated items from the download phase to the publish phase.
//
// Download logs carry the columns Sno, Type, ProjectName, Name, Path,
// Show_Tabs, Views, Response, Details. Publish logs carry Sno, Type,
// ProjectName, Name, Show_Tabs, Hidden_Views, Path, Response, Details.
// Workbook view lists are written as JSON arrays of view names. Readers also
// accept quoted list literals such as ['Overview', 'Detail'], so logs produced
// by the earlier Python tool can be published. The visibility columns stay
// empty for flows and datasources.
package statelog

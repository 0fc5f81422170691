// Package publish replays a download state log into a target site: it
// resolves each row's project, republishes the staged artifact with
// overwrite semantics, and restores workbook view visibility.
package publish

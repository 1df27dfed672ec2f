// Package document stores schemaless JSON documents grouped into named
// collections in SQLite, and reports every write as a Change to the
// registered notifiers.
//
// Each document carries its identifier in the "_id" field. Insert assigns
// one when the caller does not.
package document

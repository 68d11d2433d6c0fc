// Package store defines the models and interfaces for scrape persistence
// (streets, parcel records, media assets, stage progress). Implementations
// live in subpackages; this package must not import database drivers or
// concrete clients.
package store

// Package model defines the result types shared by the sync engine, the
// pipeline that drives it and the report writers.
//
// The types live in their own package so that crawler, pipeline and
// report can all use them without importing each other.
package model

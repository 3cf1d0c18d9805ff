// Package domain models ALADIN open-data model runs and the files derived
// from them.
//
// # Data Source
//
// The Czech Hydrometeorological Institute publishes ALADIN Lambert 2.3 km
// forecasts under one directory per daily cycle ("00", "06", "12", "18").
// Each directory is a plain HTML index whose anchors name the GRIB files of
// the runs it currently holds:
//
//	ALADLAMB4opendata_2025011406_MSLPRESSURE.grb.bz2
//	^ archive prefix  ^ timestamp ^ variable code ^ optional extensions
//
// # Timestamps
//
// A run timestamp is a fixed-width, zero-padded digit string (YYYYMMDDHH).
// It is treated as an opaque token: two timestamps are ordered by plain
// lexicographic comparison, which agrees with chronological order as long as
// the width is fixed. Timestamps are never parsed into time.Time.
//
// # Published Names
//
// Merged artifacts are published as "{prefix}_{timestamp}.{ext}" and the
// most recent one is reachable through the alias "{prefix}_latest.{ext}",
// a symlink whose target is the stamped file name.
package domain

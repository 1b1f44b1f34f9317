//go:build linux

// Package usbid loads the USB ID database distributed with most Linux
// systems and annotates vendor/product IDs with human-readable names for
// the supervisor's device-arrival log lines.
//
// A Database is loaded once at startup and handed to
// supervisor.Engine.Annotate as a bound method value, so the supervisor
// itself never imports this package directly:
//
//	db := usbid.New()
//	db.Load()
//	engine.Annotate = db.Annotate
//
// If no database file is found at any of DefaultPaths, Annotate degrades
// to returning empty names rather than failing startup; annotation is a
// cosmetic addition to the log line, not a dependency the supervisor's
// correctness relies on.
package usbid

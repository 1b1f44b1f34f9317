//go:build linux

package usbid

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/ardnew/usbpower/pkg"
)

// DefaultPaths lists the standard locations for the USB ID database this
// supervisor searches when annotating hotplug log lines with human-readable
// vendor and product names.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// Database caches vendor and product names parsed from a USB ID database
// file. A zero-value-adjacent Database (via New or NewWithPaths) is safe to
// hand to Engine.Annotate before Load completes; every lookup simply misses
// until the file is parsed.
type Database struct {
	vendors  map[uint16]string
	products map[uint32]string
	loaded   bool
	mu       sync.RWMutex
	paths    []string
}

// New creates a USB ID database that searches the default paths.
func New() *Database {
	return NewWithPaths(DefaultPaths)
}

// NewWithPaths creates a USB ID database that searches paths in order,
// stopping at the first one that opens successfully.
func NewWithPaths(paths []string) *Database {
	return &Database{
		vendors:  make(map[uint16]string),
		products: make(map[uint32]string),
		paths:    paths,
	}
}

// Load parses the first reachable database file. It is idempotent: once a
// load has been attempted, later calls are a no-op, whether or not a file
// was found. A missing database is not reported as an error here; it only
// means every later Annotate call returns empty names, which the caller
// already treats as "nothing to add" rather than a failure.
func (db *Database) Load() {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.loaded {
		return
	}
	db.loaded = true

	for _, path := range db.paths {
		file, err := os.Open(path)
		if err != nil {
			continue
		}
		db.parseDatabase(file)
		file.Close()
		pkg.LogInfo(pkg.ComponentUSBID, "database loaded", "path", path,
			"vendors", len(db.vendors), "products", len(db.products))
		return
	}
	pkg.LogWarn(pkg.ComponentUSBID, "database not found", "paths", db.paths)
}

// parseDatabase parses the USB ID database format: unindented vendor lines
// ("xxxx  Vendor Name") followed by tab-indented product lines belonging to
// the vendor most recently seen.
func (db *Database) parseDatabase(file *os.File) {
	scanner := bufio.NewScanner(file)
	var currentVID uint16

	for scanner.Scan() {
		line := scanner.Text()

		if len(line) == 0 || line[0] == '#' {
			continue
		}

		if line[0] == '\t' {
			if currentVID == 0 {
				continue
			}
			line = line[1:]
			if len(line) < 6 {
				continue
			}
			pid, err := strconv.ParseUint(line[:4], 16, 16)
			if err != nil {
				continue
			}
			if len(line) > 6 && line[4] == ' ' {
				name := strings.TrimLeft(line[5:], " ")
				key := (uint32(currentVID) << 16) | uint32(pid)
				db.products[key] = name
			}
			continue
		}

		if len(line) >= 6 {
			vid, err := strconv.ParseUint(line[:4], 16, 16)
			if err != nil {
				currentVID = 0
				continue
			}
			currentVID = uint16(vid)
			if len(line) > 6 && line[4] == ' ' {
				db.vendors[currentVID] = strings.TrimLeft(line[5:], " ")
			}
			continue
		}

		currentVID = 0
	}
}

// Annotate resolves a vendor/product ID pair to human-readable names in a
// single locked pass. Either or both names are empty if not found or the
// database never loaded; this is the function value assigned to
// supervisor.Engine.Annotate by cmd/usbpowerd.
func (db *Database) Annotate(vendorID, productID uint16) (vendor, product string) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	vendor = db.vendors[vendorID]
	key := (uint32(vendorID) << 16) | uint32(productID)
	product = db.products[key]
	return vendor, product
}

// IsLoaded reports whether a load has been attempted, successfully or not.
func (db *Database) IsLoaded() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.loaded
}

// VendorCount returns the number of vendors parsed from the database.
func (db *Database) VendorCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.vendors)
}

// ProductCount returns the number of products parsed from the database.
func (db *Database) ProductCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.products)
}

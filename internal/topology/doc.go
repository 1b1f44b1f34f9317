// Package topology holds the set of known switching hubs, the set of
// supervised ports, and the subset of ports with a pending timer deadline.
// Ports are looked up by USB topological path and hubs by their device
// handle; the registry owns every hub and
// port it holds and is the only mutator of either collection.
package topology

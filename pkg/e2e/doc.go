// Package e2e implements the end-to-end region handshake between guest and
// host.
//
// Each side fills its half of every fill record of a test region with its
// pattern and publishes MEMORY_FILLED in its stage register. Once the peer
// register shows MEMORY_FILLED, the side reads back the peer half of every
// record and publishes PEER_MEMORY_READ if all of them hold the peer
// pattern. Stage registers are written with release and read with acquire
// semantics, so the record content a register announces is visible to the
// peer that observes it.
//
// Suite bundles the handshakes with the region lookup checks a device runs
// at boot.
package e2e

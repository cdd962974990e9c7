// Package graph implements the in-memory value model the codec walks.
//
// This package contains:
//   - Object, an ordered keyed mapping with an explicit ancestor link
//   - Array, a growable list with reference identity
//   - the Composite and Inheritor interfaces used for automatic child enumeration
//   - Equal, a cycle-aware structural comparison
//
// Atoms (nil, booleans, numbers, strings) are plain Go values. Everything else
// is compared by identity: two pointers to equal Objects are two nodes.
package graph

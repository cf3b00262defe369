// Package lineage implements the content-addressed versioning primitives used to
// chain designs and builds to their parents: sequence normalization, mutation
// list parsing and the lineage hash itself.
//
// The lineage hash is order-sensitive in the mutation list. Scoring code that
// compares mutation sets must use MutationSet and never reorder the list that is
// handed to Hash.
package lineage

// Package catalog defines the records exchanged between the request
// analyzer, the search engine, the selection stage, and catalogue providers.
//
// Values in this package are treated as immutable once produced: analyzers
// return a Request by value, providers return fresh Candidate and Variant
// slices, and ranking functions copy before sorting.
package catalog

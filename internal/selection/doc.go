// Package selection picks the catalogue item and download variant a run will
// use. Variant ranking is a fixed label table; candidate arbitration may ask
// an optional advisor and always falls back to the top-scored candidate.
package selection

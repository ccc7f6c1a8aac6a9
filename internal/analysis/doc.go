// Package analysis turns free-text model requests into catalog.Request values.
//
// Short requests that name a known theme are analysed directly with keyword
// tables. Longer or unusual requests get a semantic pass: an optional
// language-model source proposes related concepts and search hints, and a
// deterministic concept table takes over whenever that source is missing or
// returns something unusable.
package analysis

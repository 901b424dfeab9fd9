// Package textutil holds small text helpers shared across the pipeline:
// filename sanitization for derived subtitle artifacts, term-frequency
// fingerprints with cosine similarity for spotting repeated transcript
// lines, and a generic conditional helper.
package textutil

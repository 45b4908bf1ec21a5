// Package fontdiff ranks fonts by how closely their glyphs resemble a
// reference font.
//
// Fonts are compared as pictures. The symbols both fonts draw are laid out
// in a square grid, one per cell, rendered once per font, and the two
// images are differenced; the mean difference becomes a similarity score
// where higher means closer. Because typefaces sit at different heights
// inside their em boxes, the candidate is first shifted by the pixel
// offset that best overlays it on the reference.
//
// The pipeline has five parts:
//
//   - Extractor finds the codepoints a font actually draws, skipping
//     mapped glyphs with empty outlines.
//   - MatrixRenderer draws symbol grids, cached in memory (ImageCache) and
//     on disk (DiskCache).
//   - Score turns two renders into a Similarity.
//   - Aligner searches offsets coarse to fine over a short probe string,
//     and in thorough mode over every shared symbol.
//   - Ranker runs the above over many candidates: it skips fonts with too
//     little overlap, prunes fonts whose quick score trails the leaders,
//     fully compares the rest, and rescores the top K thoroughly.
//
// NewEngine wires these from a Config.
package fontdiff

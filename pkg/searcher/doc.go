// Package searcher answers free-text queries over the block indexes.
//
//   - [TextSearcher]: keyword search over the full-text index
//   - [VectorSearcher]: similarity search over embedded chunks
//
// Results are block-level: a vector hit on any chunk of a block counts as a
// hit on the block, keeping the best chunk score. The two searchers are
// independent; combining their rankings is left to the caller.
package searcher

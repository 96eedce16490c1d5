// Package indexer provides the downstream index targets that the fan-out
// coordinator drives after a page has been saved.
//
// Each target hides one storage backend behind the same page-level contract:
//
//	┌──────────────────────┐
//	│  index.Coordinator   │  (fan-out, circuit breakers)
//	└──────────┬───────────┘
//	           │
//	┌──────────▼───────────┐
//	│   indexer.Indexer    │  ← This package
//	└──────────┬───────────┘
//	      ┌────┴─────┐
//	┌─────▼─────┐ ┌──▼────────┐
//	│TextIndexer│ │VectorIndex│
//	└───────────┘ └───────────┘
//
// # Usage
//
//	text, err := indexer.NewTextIndexer(indexer.WithStore(textIndex))
//	if err != nil {
//	    return err
//	}
//	vectors, err := indexer.NewVectorIndexer(
//	    indexer.WithEmbedder(embedder),
//	    indexer.WithVectorStore(vectorIndex),
//	)
//
// Index, Update and Delete are idempotent per page, so a failed call can be
// retried by re-processing the file.
package indexer

// Package domain holds the page/block hierarchy model: identifiers, value
// objects and the Page aggregate that owns a tree of blocks.
package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
)

// PageID identifies a page. Values compare by string equality.
type PageID string

// BlockID identifies a block within the whole graph.
type BlockID string

// ChunkID identifies one embedded window of a block's text.
type ChunkID string

// blockNamespace seeds deterministic block ids so that re-parsing an
// unchanged file for the same page yields identical ids.
var blockNamespace = uuid.MustParse("6f1c1d2e-8a4b-4d55-9a0e-5b1f0e6c7a21")

// NewPageID validates a page identifier.
func NewPageID(s string) (PageID, error) {
	if strings.TrimSpace(s) == "" {
		return "", amerrors.ValidationError("page id must not be empty", nil)
	}
	return PageID(s), nil
}

// NewRandomPageID returns a fresh page id of the form "page-<uuid>".
func NewRandomPageID() PageID {
	return PageID("page-" + uuid.NewString())
}

// NewBlockID validates a block identifier.
func NewBlockID(s string) (BlockID, error) {
	if strings.TrimSpace(s) == "" {
		return "", amerrors.ValidationError("block id must not be empty", nil)
	}
	return BlockID(s), nil
}

// DeterministicBlockID derives the id of the ordinal-th block of a page.
func DeterministicBlockID(page PageID, ordinal int) BlockID {
	u := uuid.NewSHA1(blockNamespace, []byte(fmt.Sprintf("%s/%d", page, ordinal)))
	return BlockID("block-" + u.String())
}

// NewChunkID names the index-th chunk of a block.
func NewChunkID(block BlockID, index int) ChunkID {
	return ChunkID(fmt.Sprintf("%s_chunk_%d", block, index))
}

// NewChunkIDFromString validates a stored chunk identifier.
func NewChunkIDFromString(s string) (ChunkID, error) {
	if strings.TrimSpace(s) == "" {
		return "", amerrors.ValidationError("chunk id must not be empty", nil)
	}
	return ChunkID(s), nil
}

func (id PageID) String() string  { return string(id) }
func (id BlockID) String() string { return string(id) }
func (id ChunkID) String() string { return string(id) }

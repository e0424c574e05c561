package accumulator

import (
	"errors"
	"fmt"
)

// ErrProofMismatch is returned when an inclusion proof does not reproduce
// the expected root.
var ErrProofMismatch = errors.New("inclusion proof does not match root")

// InclusionProof shows that the leaf at LeafIndex is part of the tree of
// TreeSize leaves whose head is Root. Path holds the sibling hashes from
// the leaf upwards (RFC 9162 audit path).
type InclusionProof struct {
	LeafIndex   uint64   `json:"leaf_index"`
	TreeSize    uint64   `json:"tree_size"`
	ContentHash string   `json:"content_hash"`
	Root        string   `json:"root"`
	Path        []string `json:"path"`
}

// Prove builds the inclusion proof for contentHashes[index] against the tree
// formed by all of contentHashes.
func Prove(contentHashes []Digest, index uint64) (InclusionProof, error) {
	n := uint64(len(contentHashes))
	if index >= n {
		return InclusionProof{}, fmt.Errorf("prove: leaf index %d out of range for tree size %d", index, n)
	}

	leaves := make([]Digest, n)
	for i, h := range contentHashes {
		leaves[i] = LeafHash(h)
	}

	siblings := auditPath(index, leaves)
	path := make([]string, len(siblings))
	for i, s := range siblings {
		path[i] = s.String()
	}

	return InclusionProof{
		LeafIndex:   index,
		TreeSize:    n,
		ContentHash: contentHashes[index].String(),
		Root:        subtreeHash(leaves).String(),
		Path:        path,
	}, nil
}

// auditPath is PATH(m, D[n]) from RFC 6962 section 2.1.1, ordered leaf first.
func auditPath(m uint64, leaves []Digest) []Digest {
	n := uint64(len(leaves))
	if n <= 1 {
		return nil
	}
	k := splitPoint(n)
	if m < k {
		return append(auditPath(m, leaves[:k]), subtreeHash(leaves[k:]))
	}
	return append(auditPath(m-k, leaves[k:]), subtreeHash(leaves[:k]))
}

// subtreeHash is MTH over already-hashed leaves.
func subtreeHash(leaves []Digest) Digest {
	switch n := uint64(len(leaves)); n {
	case 0:
		return EmptyRoot()
	case 1:
		return leaves[0]
	default:
		k := splitPoint(n)
		return NodeHash(subtreeHash(leaves[:k]), subtreeHash(leaves[k:]))
	}
}

// splitPoint returns the largest power of two strictly less than n (n > 1).
func splitPoint(n uint64) uint64 {
	k := uint64(1)
	for k<<1 < n {
		k <<= 1
	}
	return k
}

// VerifyInclusion checks a proof with the RFC 9162 section 2.1.3.2
// algorithm. It returns nil when the proof reproduces p.Root.
func VerifyInclusion(p InclusionProof) error {
	if p.LeafIndex >= p.TreeSize {
		return fmt.Errorf("verify inclusion: leaf index %d out of range for tree size %d", p.LeafIndex, p.TreeSize)
	}
	content, err := ParseDigest(p.ContentHash)
	if err != nil {
		return fmt.Errorf("verify inclusion: %w", err)
	}
	root, err := ParseDigest(p.Root)
	if err != nil {
		return fmt.Errorf("verify inclusion: %w", err)
	}

	fn, sn := p.LeafIndex, p.TreeSize-1
	r := LeafHash(content)
	for i, s := range p.Path {
		sibling, err := ParseDigest(s)
		if err != nil {
			return fmt.Errorf("verify inclusion: path[%d]: %w", i, err)
		}
		if sn == 0 {
			return ErrProofMismatch
		}
		if fn&1 == 1 || fn == sn {
			r = NodeHash(sibling, r)
			for fn&1 == 0 && fn != 0 {
				fn >>= 1
				sn >>= 1
			}
		} else {
			r = NodeHash(r, sibling)
		}
		fn >>= 1
		sn >>= 1
	}

	if sn != 0 || r != root {
		return ErrProofMismatch
	}
	return nil
}

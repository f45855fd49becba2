// Package shamap implements the AuthenticatedMap ("SHAMap") described
// in spec §4.B: a 256-bit-keyed Merkle radix trie over opaque byte
// values, with a deterministic, insertion-order-independent root
// hash, copy-on-write structural sharing between snapshots, and
// lazy materialization of nodes fetched from a backing store.
//
// The branch/split mechanics are grounded on the retrieved XRPL Go
// port's walkTowardsKey / findSplitDepth / createSplitStructure
// (other_examples/LeJamon-goXRPLd__shamap.go): this package follows
// the same nibble-branching, split-on-collision design, reworked into
// a recursive copy-on-write form because that draft mutated nodes in
// place via dirtyUp, which is unsafe once a parent ledger and a child
// ledger hold separate SHAMap snapshots over shared subtrees (spec
// §5, §9).
package shamap

import (
	"errors"
	"sync"

	"thomasd/internal/serializer"
)

var (
	// ErrNotReady is returned when a lazily-loaded subtree cannot be
	// materialized because the map has no NodeFetcher attached.
	ErrNotReady = errors.New("shamap: node not loaded and no fetcher attached")
)

// SHAMap is a 256-bit-keyed authenticated radix trie.
type SHAMap struct {
	mu       sync.Mutex
	root     *innerNode
	nodeType NodeType
	fetcher  NodeFetcher

	// pendingRoot holds a root hash not yet resolved to a real node.
	// Zero once materialized (or if the map was never lazy to begin
	// with).
	pendingRoot serializer.Hash256
}

// New creates an empty SHAMap of the given type.
func New(nodeType NodeType) *SHAMap {
	return &SHAMap{root: newInnerNode(), nodeType: nodeType}
}

// NewLazy creates a SHAMap whose root is only known by hash; its
// contents materialize on demand from fetcher. rootHash may be the
// zero hash, meaning the map is known to be empty (spec §3: "trans_hash
// zero iff map empty") — no fetch is attempted in that case.
func NewLazy(rootHash serializer.Hash256, nodeType NodeType, fetcher NodeFetcher) *SHAMap {
	sm := &SHAMap{nodeType: nodeType, fetcher: fetcher}
	if rootHash.IsZero() {
		sm.root = newInnerNode()
		sm.root.dirty = false
		sm.root.hashValid = true
		sm.root.cached = rootHash
		return sm
	}
	// The real root is materialized lazily the first time it is
	// touched; until then sm.root stays nil and pendingRoot carries
	// the hash materializeRoot needs to resolve it.
	sm.pendingRoot = rootHash
	return sm
}

func (sm *SHAMap) materializeRoot() error {
	if sm.pendingRoot.IsZero() {
		return nil
	}
	data, ok, err := sm.fetch(sm.pendingRoot)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotReady
	}
	n, err := decodeNode(data)
	if err != nil {
		return err
	}
	inner, ok := n.(*innerNode)
	if !ok {
		return errCorruptNode
	}
	sm.root = inner
	sm.pendingRoot = serializer.Hash256{}
	return nil
}

func (sm *SHAMap) fetch(h serializer.Hash256) ([]byte, bool, error) {
	if sm.fetcher == nil {
		return nil, false, ErrNotReady
	}
	return sm.fetcher.FetchNode(h, sm.nodeType)
}

// materialize resolves a possible hashRef into a real node.
func (sm *SHAMap) materialize(n treeNode) (treeNode, error) {
	ref, ok := n.(*hashRef)
	if !ok {
		return n, nil
	}
	data, ok, err := sm.fetch(ref.h)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotReady
	}
	return decodeNode(data)
}

// Peek reads a value without touching dirty state (spec §4.B).
func (sm *SHAMap) Peek(key serializer.Hash256) ([]byte, bool, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if err := sm.materializeRoot(); err != nil {
		return nil, false, err
	}
	leaf, err := sm.findLeaf(sm.root, key, 0)
	if err != nil {
		return nil, false, err
	}
	if leaf == nil {
		return nil, false, nil
	}
	v := make([]byte, len(leaf.value))
	copy(v, leaf.value)
	return v, true, nil
}

func (sm *SHAMap) findLeaf(node treeNode, key serializer.Hash256, depth int) (*leafNode, error) {
	node, err := sm.materialize(node)
	if err != nil {
		return nil, err
	}
	switch t := node.(type) {
	case nil:
		return nil, nil
	case *leafNode:
		if t.key == key {
			return t, nil
		}
		return nil, nil
	case *innerNode:
		child := t.children[nibble(key, depth)]
		if child == nil {
			return nil, nil
		}
		return sm.findLeaf(child, key, depth+1)
	default:
		return nil, errCorruptNode
	}
}

// Add inserts key=>value, failing if the key already exists.
func (sm *SHAMap) Add(key serializer.Hash256, value []byte) (bool, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if err := sm.materializeRoot(); err != nil {
		return false, err
	}
	newRoot, ok, err := sm.upsertAt(sm.root, key, value, 0, false)
	if err != nil || !ok {
		return false, err
	}
	sm.root = newRoot.(*innerNode)
	return true, nil
}

// Update replaces the value for key, failing if it is absent.
func (sm *SHAMap) Update(key serializer.Hash256, value []byte) (bool, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if err := sm.materializeRoot(); err != nil {
		return false, err
	}
	newRoot, ok, err := sm.upsertAt(sm.root, key, value, 0, true)
	if err != nil || !ok {
		return false, err
	}
	sm.root = newRoot.(*innerNode)
	return true, nil
}

// upsertAt recursively descends to key, cloning every inner node on
// the path (copy-on-write) so that a snapshot holding the old root
// still sees the tree as it was. requireExisting selects Update
// semantics (fail if absent) vs Add semantics (fail if present).
func (sm *SHAMap) upsertAt(node treeNode, key serializer.Hash256, value []byte, depth int, requireExisting bool) (treeNode, bool, error) {
	node, err := sm.materialize(node)
	if err != nil {
		return nil, false, err
	}
	switch t := node.(type) {
	case nil:
		if requireExisting {
			return nil, false, nil
		}
		return newLeafNode(key, value), true, nil
	case *leafNode:
		if t.key == key {
			if requireExisting {
				return newLeafNode(key, value), true, nil
			}
			return node, false, nil // Add on an existing key fails
		}
		if requireExisting {
			return nil, false, nil
		}
		return sm.splitLeaf(t, newLeafNode(key, value), depth)
	case *innerNode:
		idx := nibble(key, depth)
		newChild, ok, err := sm.upsertAt(t.children[idx], key, value, depth+1, requireExisting)
		if err != nil || !ok {
			return node, ok, err
		}
		clone := t.cloneShallow()
		clone.children[idx] = newChild
		return clone, true, nil
	default:
		return nil, false, errCorruptNode
	}
}

// splitLeaf builds the inner-node chain needed to separate two leaves
// whose keys share a common nibble prefix starting at depth.
func (sm *SHAMap) splitLeaf(existing, incoming *leafNode, depth int) (treeNode, bool, error) {
	if depth >= 64 {
		return nil, false, errors.New("shamap: maximum trie depth reached (duplicate key?)")
	}
	ei, ni := nibble(existing.key, depth), nibble(incoming.key, depth)
	if ei == ni {
		child, ok, err := sm.splitLeaf(existing, incoming, depth+1)
		if err != nil || !ok {
			return nil, ok, err
		}
		inner := newInnerNode()
		inner.children[ei] = child
		return inner, true, nil
	}
	inner := newInnerNode()
	inner.children[ei] = existing
	inner.children[ni] = incoming
	return inner, true, nil
}

// Delete removes key, failing if it is absent. Inner nodes left empty
// collapse out of the tree and inner nodes left with a single leaf
// collapse into that leaf as the recursion unwinds (deleteAt).
func (sm *SHAMap) Delete(key serializer.Hash256) (bool, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if err := sm.materializeRoot(); err != nil {
		return false, err
	}
	newRoot, ok, err := sm.deleteAt(sm.root, key, 0, true)
	if err != nil || !ok {
		return false, err
	}
	if newRoot == nil {
		sm.root = newInnerNode()
	} else {
		sm.root = newRoot.(*innerNode)
	}
	return true, nil
}

// deleteAt removes key from the subtree rooted at node, then
// consolidates: an inner node left with a single child that is a leaf
// is replaced by that leaf, mirroring the retrieved XRPL port's
// consolidateUp. An inner node whose single child is another inner
// node is kept, because splitLeaf builds exactly such single-child
// chains down to the depth where two keys diverge; collapsing them
// would give a shape a from-scratch build never produces. The map's
// root stays an innerNode even when it ends up with exactly one child
// — sm.root's type is always *innerNode, and a fresh Add into an
// empty map attaches its first leaf the same way, directly under the
// root. Together these keep the tree after a delete identical to a
// from-scratch build of the surviving keys (spec §4.B, §8.7).
func (sm *SHAMap) deleteAt(node treeNode, key serializer.Hash256, depth int, isRoot bool) (treeNode, bool, error) {
	node, err := sm.materialize(node)
	if err != nil {
		return nil, false, err
	}
	switch t := node.(type) {
	case nil:
		return nil, false, nil
	case *leafNode:
		if t.key != key {
			return node, false, nil
		}
		return nil, true, nil
	case *innerNode:
		idx := nibble(key, depth)
		newChild, ok, err := sm.deleteAt(t.children[idx], key, depth+1, false)
		if err != nil || !ok {
			return node, ok, err
		}
		clone := t.cloneShallow()
		clone.children[idx] = newChild
		switch clone.childCount() {
		case 0:
			return nil, true, nil
		case 1:
			if !isRoot {
				only, err := sm.materialize(clone.onlyChild())
				if err != nil {
					return nil, false, err
				}
				if _, isLeaf := only.(*leafNode); isLeaf {
					return only, true, nil
				}
			}
		}
		return clone, true, nil
	default:
		return nil, false, errCorruptNode
	}
}

// RootHash returns the map's deterministic root hash. An empty map
// (no entries) hashes to the all-zero Hash256, matching spec §3's
// "trans_hash zero iff map empty" rule rather than the hash of an
// empty trie structure.
func (sm *SHAMap) RootHash() serializer.Hash256 {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.pendingRoot.IsZero() {
		return sm.pendingRoot
	}
	if sm.root.childCount() == 0 {
		return serializer.Hash256{}
	}
	return sm.root.hash()
}

// Copy returns a new SHAMap sharing the current root by reference.
// Because every mutator clones nodes along the modified path instead
// of mutating in place, the original map's view of the tree is
// unaffected by subsequent mutation of the copy — this is the
// parent/successor ledger account-map sharing required by spec §3/§9.
func (sm *SHAMap) Copy() *SHAMap {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return &SHAMap{root: sm.root, nodeType: sm.nodeType, fetcher: sm.fetcher, pendingRoot: sm.pendingRoot}
}

// FlushDirty writes up to batchCap dirty nodes to w, tagged with
// ledgerSeq, clearing their dirty flags. It returns whether dirty
// nodes remain after this call (spec §4.B), so callers loop:
//
//	for more, _ := m.FlushDirty(64, seq, store); more; more, _ = m.FlushDirty(64, seq, store) {}
func (sm *SHAMap) FlushDirty(batchCap int, ledgerSeq uint32, w NodeWriter) (bool, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	var entries []FlushEntry
	more := collectDirty(sm.root, sm.nodeType, ledgerSeq, batchCap, &entries)
	if len(entries) == 0 {
		return false, nil
	}
	if err := w.StoreNodes(entries); err != nil {
		return false, err
	}
	return more, nil
}

// collectDirty walks the tree depth-first, appending encoded dirty
// nodes to entries and clearing their dirty flag, stopping once cap
// entries have been collected. It returns true if the cap was hit
// before the whole dirty set was visited (more work remains). This
// is a full-tree walk on every call rather than an index of dirty
// nodes — simple and correct, at the cost of re-visiting clean
// subtrees; acceptable for this engine's scale, called out as a
// known inefficiency rather than hidden (spec §4.B flags the
// analogous sharing shortcut the same way).
func collectDirty(n treeNode, nodeType NodeType, ledgerSeq uint32, cap int, entries *[]FlushEntry) bool {
	switch t := n.(type) {
	case nil, *hashRef:
		return false
	case *leafNode:
		if !t.dirty {
			return false
		}
		if len(*entries) >= cap {
			return true
		}
		*entries = append(*entries, FlushEntry{Hash: t.hash(), NodeType: nodeType, LedgerSeq: ledgerSeq, Data: encodeNode(t)})
		t.dirty = false
		return false
	case *innerNode:
		if !t.dirty {
			return false
		}
		more := false
		for _, ch := range t.children {
			if ch == nil {
				continue
			}
			if len(*entries) >= cap {
				more = true
				break
			}
			if collectDirty(ch, nodeType, ledgerSeq, cap, entries) {
				more = true
			}
		}
		if len(*entries) >= cap {
			return true
		}
		*entries = append(*entries, FlushEntry{Hash: t.hash(), NodeType: nodeType, LedgerSeq: ledgerSeq, Data: encodeNode(t)})
		t.dirty = false
		return more
	default:
		return false
	}
}

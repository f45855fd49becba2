package shamap

import "thomasd/internal/serializer"

// NodeType distinguishes which of the ledger's two authenticated maps
// a flushed or fetched node belongs to. Persisted alongside the node
// hash so a single blob store can serve both maps (spec §6).
type NodeType int

const (
	AccountNode NodeType = iota
	TransactionNode
)

func (t NodeType) String() string {
	if t == TransactionNode {
		return "TRANSACTION_NODE"
	}
	return "ACCOUNT_NODE"
}

// treeNode is the unexported node contract shared by inner and leaf
// nodes. Every node is immutable once constructed: mutation always
// produces a new node so that a snapshot holding an old root can keep
// observing it safely while another snapshot mutates forward (§5, §9
// "standard persistent data structure contract").
type treeNode interface {
	hash() serializer.Hash256
	isDirty() bool
}

// innerNode is a 16-ary branch keyed on one hex nibble of the 256-bit
// key per tree level (64 levels total). Empty branches are nil.
type innerNode struct {
	children  [16]treeNode
	dirty     bool
	hashValid bool
	cached    serializer.Hash256
}

func newInnerNode() *innerNode {
	return &innerNode{dirty: true}
}

func (n *innerNode) isDirty() bool { return n.dirty }

func (n *innerNode) childCount() int {
	c := 0
	for _, ch := range n.children {
		if ch != nil {
			c++
		}
	}
	return c
}

// cloneShallow copies the node's branch array (new top-level object)
// without touching the children themselves — the copy-on-write unit.
func (n *innerNode) cloneShallow() *innerNode {
	c := &innerNode{dirty: true}
	c.children = n.children
	return c
}

// onlyChild returns n's single non-nil child. Callers must have
// already checked childCount() == 1.
func (n *innerNode) onlyChild() treeNode {
	for _, ch := range n.children {
		if ch != nil {
			return ch
		}
	}
	return nil
}

// hash composes the node digest as SHA-512-half(0x01 || 16 child
// hashes), using the zero hash for empty branches. Because the digest
// is purely a function of the (possibly recursively lazy) children,
// it is independent of how those children were inserted — this is
// what gives the whole map order-insensitive root hashing (spec §8.7).
func (n *innerNode) hash() serializer.Hash256 {
	if n.hashValid {
		return n.cached
	}
	buf := serializer.New(1 + 16*32)
	buf.AddRaw([]byte{0x01})
	for _, ch := range n.children {
		var h serializer.Hash256
		if ch != nil {
			h = ch.hash()
		}
		buf.Add256(h)
	}
	n.cached = buf.SHA512Half()
	n.hashValid = true
	return n.cached
}

// leafNode stores one (key, value) pair. value is an opaque blob —
// the canonical encoding of an AccountState or a Transaction.
type leafNode struct {
	key   serializer.Hash256
	value []byte
	dirty bool
}

func newLeafNode(key serializer.Hash256, value []byte) *leafNode {
	v := make([]byte, len(value))
	copy(v, value)
	return &leafNode{key: key, value: v, dirty: true}
}

func (n *leafNode) isDirty() bool { return n.dirty }

// hash composes SHA-512-half(0x00 || key || value).
func (n *leafNode) hash() serializer.Hash256 {
	buf := serializer.New(1 + 32 + len(n.value))
	buf.AddRaw([]byte{0x00})
	buf.Add256(n.key)
	buf.AddRaw(n.value)
	return buf.SHA512Half()
}

// hashRef is a placeholder standing in for a node that has not yet
// been materialized from the backing store. It only knows its own
// hash; resolving it to a real node requires a NodeFetcher (§4.F
// "fetch_node used lazily by maps to materialize subtrees").
type hashRef struct {
	h serializer.Hash256
}

func (r *hashRef) isDirty() bool               { return false }
func (r *hashRef) hash() serializer.Hash256     { return r.h }

func nibble(key serializer.Hash256, depth int) int {
	b := key[depth/2]
	if depth%2 == 0 {
		return int(b >> 4)
	}
	return int(b & 0x0F)
}

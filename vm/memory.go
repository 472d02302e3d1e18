package vm

// Memory owns the heap, the collection root, and the free-list head. It is
// the only thing that ever turns a raw index into a live cell.
type Memory[W Word] struct {
	heap *Heap[W]
	root Value[W]
	free Value[W]
}

// cellIndexOf returns the even head index of the cell v's payload names,
// with any field tag stripped off.
func cellIndexOf[W Word](v Value[W]) int {
	return int(ToPointer(v) &^ 1)
}

// fieldOf returns the field tag (0 = head, 1 = tail) carried in v's
// payload low bit.
func fieldOf[W Word](v Value[W]) int {
	return int(ToPointer(v) & 1)
}

// withField returns v with its payload's field tag replaced, preserving
// kind, mark, and cell index.
func withField[W Word](v Value[W], field int) Value[W] {
	return SetPointer(v, uint64(cellIndexOf(v))|uint64(field))
}

// New builds a Memory over heap: it zeroes the backing store, clears the
// root, and runs one collection, which (root being null) simply threads
// every cell into the free list.
func New[W Word](heap *Heap[W]) (*Memory[W], error) {
	if heap.Len()%2 != 0 {
		return nil, &VMError{Kind: InvalidMemoryAccess}
	}
	for i := 0; i < heap.Len(); i++ {
		if err := heap.Set(i, 0); err != nil {
			return nil, err
		}
	}
	m := &Memory[W]{heap: heap}
	if err := m.Collect(); err != nil {
		return nil, err
	}
	return m, nil
}

// Root returns the current collection root.
func (m *Memory[W]) Root() Value[W] {
	return m.root
}

// SetRoot replaces the collection root.
func (m *Memory[W]) SetRoot(v Value[W]) {
	m.root = v
}

// Get passes through to the cell store.
func (m *Memory[W]) Get(i int) (Value[W], error) {
	return m.heap.Get(i)
}

// Set passes through to the cell store.
func (m *Memory[W]) Set(i int, v Value[W]) error {
	return m.heap.Set(i, v)
}

// Allocate pops a cell off the free list, initializing its head and tail,
// and returns a pointer to it. If the free list is empty, it runs a
// collection first; if it is still empty, it fails with OutOfMemory.
func (m *Memory[W]) Allocate(head, tail Value[W]) (Value[W], error) {
	if m.free == 0 {
		if err := m.Collect(); err != nil {
			return 0, err
		}
	}
	if m.free == 0 {
		return 0, &VMError{Kind: OutOfMemory}
	}
	idx := int(ToPointer(m.free))
	next, err := m.heap.Get(idx + 1)
	if err != nil {
		return 0, err
	}
	m.free = next
	if err := m.heap.Set(idx, head); err != nil {
		return 0, err
	}
	if err := m.heap.Set(idx+1, tail); err != nil {
		return 0, err
	}
	return FromPointer[W](uint64(idx)), nil
}

// Collect runs the mark phase followed by the sweep phase.
func (m *Memory[W]) Collect() error {
	if err := m.mark(); err != nil {
		return err
	}
	return m.sweep()
}

// ═══════════════════════════════════════════════════════════════════════════
// MARK PHASE — Deutsch-Schorr-Waite pointer reversal
// ═══════════════════════════════════════════════════════════════════════════
//
// Traces the live graph with O(1) auxiliary memory by temporarily reversing
// each pointer walked, so the return path lives inside the heap itself
// rather than on a side stack.
//
// current always names a (cell, field) pair still to be visited; its
// payload's field-tag bit (see fieldOf/withField) says whether that field
// is the cell's head (0) or tail (1). previous is the (cell, field) we
// descended from, or the null value once we are back at the top. Every
// cell on the return path has exactly the field we entered it through
// overwritten with the reversed link, marked so a second arrival at the
// same cell is recognized as already in progress (this is what lets a
// self-cycle, scenario 4, survive rather than loop forever).
//
// The field-tag bit is bookkeeping local to this traversal, not part of
// any value's real payload: every genuine cons pointer names an even
// cell index, so its own low bit is always 0 before mark ever touches
// it. previous is stored into the heap with the mark bit forced on (so
// a later arrival recognizes the slot as already reversed) and read
// back with it forced off, so the null sentinel round-trips exactly
// instead of picking up a stray mark bit along the way; restoring a
// reversed link clears the field-tag bit back to 0 for the same reason,
// so the pointer lands exactly as it was before mark ever reversed it.
func (m *Memory[W]) mark() error {
	if !IsPointer(m.root) || m.root == 0 {
		return nil
	}

	var previous Value[W]
	current := m.root

	for {
		idx := cellIndexOf(current)
		field := fieldOf(current)
		slot := idx + field

		h, err := m.heap.Get(slot)
		if err != nil {
			return err
		}

		if !IsMarked(h) {
			if IsPointer(h) && h != 0 {
				// Descend: reverse this edge, recording the return path.
				if err := m.heap.Set(slot, Mark(previous, true)); err != nil {
					return err
				}
				previous = current
				current = h
				continue
			}
			// Leaf (integer, or null pointer): mark it in place, no descent.
			if err := m.heap.Set(slot, Mark(h, true)); err != nil {
				return err
			}
		}

		if field == 0 {
			// Head done; move on to the same cell's tail.
			current = withField(current, 1)
			continue
		}

		// Both fields of this cell are done: backtrack.
		if previous == 0 {
			return nil
		}
		pIdx := cellIndexOf(previous)
		pSlot := pIdx + fieldOf(previous)
		grandparent, err := m.heap.Get(pSlot)
		if err != nil {
			return err
		}
		// Restore the reversed link: same cell and kind as current, but
		// with the traversal's field tag cleared back to the untagged
		// form every real pointer payload carries.
		if err := m.heap.Set(pSlot, Mark(withField(current, 0), true)); err != nil {
			return err
		}
		current = previous
		previous = Mark(grandparent, false)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// SWEEP PHASE
// ═══════════════════════════════════════════════════════════════════════════

// sweep performs one linear scan over the cells, clearing mark bits on
// survivors and threading the rest back into the free list through their
// tail slots.
func (m *Memory[W]) sweep() error {
	n := m.heap.Len()
	for i := 0; i < n; i += 2 {
		head, err := m.heap.Get(i)
		if err != nil {
			return err
		}
		if IsMarked(head) {
			tail, err := m.heap.Get(i + 1)
			if err != nil {
				return err
			}
			if err := m.heap.Set(i, Mark(head, false)); err != nil {
				return err
			}
			if err := m.heap.Set(i+1, Mark(tail, false)); err != nil {
				return err
			}
			continue
		}
		if err := m.heap.Set(i+1, m.free); err != nil {
			return err
		}
		m.free = FromPointer[W](uint64(i))
	}
	return nil
}

// FreeLen walks the free list and counts its length. It is a test and
// debug helper, not part of the spec's public contract.
func (m *Memory[W]) FreeLen() (int, error) {
	n := 0
	cur := m.free
	for cur != 0 {
		n++
		idx := int(ToPointer(cur))
		next, err := m.heap.Get(idx + 1)
		if err != nil {
			return 0, err
		}
		cur = next
	}
	return n, nil
}

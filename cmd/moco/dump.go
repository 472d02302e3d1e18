package main

import (
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"github.com/marcinbor85/gohex"

	"github.com/raviqqe/moco/vm"
)

// dumpHeap writes a point-in-time, hex-encoded snapshot of mem's heap to
// path, guarded by an exclusive file lock so two concurrent moco
// invocations dumping to the same path don't interleave writes. This is a
// debug side channel only: moco never reads a dump back in.
func dumpHeap[W vm.Word](mem *vm.Memory[W], path string) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquiring dump lock: %w", err)
	}
	defer lock.Unlock()

	data := make([]byte, 0)
	slots := 0
	for ; ; slots++ {
		v, err := mem.Get(slots)
		if err != nil {
			break
		}
		data = append(data, wordBytes(v)...)
	}

	hmem := gohex.NewMemory()
	if err := hmem.AddBinary(0, data); err != nil {
		return fmt.Errorf("encoding heap snapshot: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating dump file %s: %w", path, err)
	}
	defer f.Close()

	if err := hmem.DumpIntelHex(f, 32); err != nil {
		return fmt.Errorf("writing dump file %s: %w", path, err)
	}

	occ, err := mem.OccupancyBitmap()
	if err != nil {
		return fmt.Errorf("computing occupancy: %w", err)
	}
	fmt.Printf("moco: dumped %s (%d/%d cells occupied)\n", path, occ.Count(), slots/2)
	return nil
}

// wordBytes renders one heap slot as little-endian bytes: two for uint16,
// four for uint32, and eight for any other W.
func wordBytes[W vm.Word](v vm.Value[W]) []byte {
	n := uint64(vm.ToPointer(v))<<2 | uint64(boolBit(vm.IsMarked(v)))<<1 | uint64(boolBit(!vm.IsPointer(v)))
	switch any(W(0)).(type) {
	case uint16:
		return []byte{byte(n), byte(n >> 8)}
	case uint32:
		return []byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}
	default:
		return []byte{
			byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24),
			byte(n >> 32), byte(n >> 40), byte(n >> 48), byte(n >> 56),
		}
	}
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Package cache implements slab-backed object caches. A Cache serves
// one fixed (size, alignment) class; it carves objects out of slabs,
// each a single power-of-two buddy allocation, and keeps slabs on
// free, partial and full lists.
//
// Slab geometry makes owner lookup O(1): slabs are naturally aligned
// powers of two, so aligning any object address down to the slab size
// yields the slab base. The slab's control block sits at the tail of
// the slab memory (base + control offset) and carries a magic, the
// owning cache's id and the live-object count, so a stray free into
// the wrong cache is detected rather than corrupting a freelist.
//
// Free object slots store the freelist inside themselves: the first
// eight bytes of a free slot hold the address of the next free slot.
// The link is destroyed when the slot is handed out and reconstructed
// when it is freed, so a slab costs no bookkeeping memory beyond its
// control block.
//
// Caches are not safe for concurrent use.
package cache

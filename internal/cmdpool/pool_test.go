package cmdpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type widget struct {
	id  int
	val string
}

func TestPool_GetAllocatesWhenEmpty(t *testing.T) {
	allocs := 0
	p := NewPool(func() *widget {
		allocs++
		return &widget{}
	})

	w := p.Get()
	require.NotNil(t, w)
	require.Equal(t, 1, allocs)
}

func TestPool_GetReusesFromFreelist(t *testing.T) {
	allocs := 0
	p := NewPool(func() *widget {
		allocs++
		return &widget{}
	})

	w1 := p.Get()
	w1.val = "reused"
	p.Put(w1)
	require.Equal(t, 1, p.Len())

	w2 := p.Get()
	require.Same(t, w1, w2)
	require.Equal(t, 1, allocs, "second Get should reuse freelist entry, not allocate")
	require.Equal(t, 0, p.Len())
}

func TestPending_AddAndDrainFIFOOrder(t *testing.T) {
	p := NewPending[widget]()
	p.Add(&widget{id: 1})
	p.Add(&widget{id: 2})
	p.Add(&widget{id: 3})
	require.Equal(t, int64(3), p.Count())

	drained := p.DrainAll()
	require.Len(t, drained, 3)
	require.Equal(t, 1, drained[0].id)
	require.Equal(t, 3, drained[2].id)
	require.Equal(t, int64(0), p.Count())
}

func TestPending_DrainEmptyIsNoop(t *testing.T) {
	p := NewPending[widget]()
	require.Empty(t, p.DrainAll())
	require.Equal(t, int64(0), p.Count())
}

package history_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
)

func TestStore_CreateAssignsIdentities(t *testing.T) {
	t.Parallel()

	s := history.NewStore()

	first := s.Create(&nodey.Code{Base: nodey.Base{ID: nodey.NoID}, Type: "name"}, 0)
	second := s.Create(&nodey.Code{Base: nodey.Base{ID: nodey.NoID}, Type: "name"}, 0)
	cell := s.Create(&nodey.CodeCell{Code: nodey.Code{Base: nodey.Base{ID: nodey.NoID}}}, 0)
	md := s.Create(&nodey.Markdown{Base: nodey.Base{ID: nodey.NoID}}, 0)

	assert.Equal(t, "c.0.0", first)
	assert.Equal(t, "c.1.0", second)
	assert.Equal(t, "c.2.0", cell)
	assert.Equal(t, "m.0.0", md)
	assert.Equal(t, []string{"c.0", "c.1", "c.2", "m.0"}, s.Keys())

	assert.Panics(t, func() {
		s.Create(&nodey.Code{Base: nodey.Base{ID: 1}}, 0)
	})
}

func TestStore_Get(t *testing.T) {
	t.Parallel()

	s := newFixture(t)
	st := history.NewStage(s)

	committed := s.MustGet("c.3.0")
	star := st.MarkAsEdited("c.3.0")

	tests := []struct {
		name string
		want nodey.Nodey
		ok   bool
	}{
		{"c.3.0", committed, true},
		{"*.c.3", star.Value, true},
		{"c.3.1", nil, false},
		{"x.y.z", nil, false},
		{"TEMP.0.9", nil, false},
	}

	for _, tt := range tests {
		got, ok := s.Get(tt.name)

		assert.Equal(t, tt.ok, ok, tt.name)

		if tt.ok {
			assert.Same(t, tt.want, got, tt.name)
		}
	}

	latest, ok := s.Latest("c.3.0")
	require.True(t, ok)
	assert.Same(t, star.Value, latest)
	assert.Equal(t, "*.c.3", s.HeadName("c.3.0"))
	assert.Equal(t, "c.2.0", s.HeadName("c.2.0"))
	assert.Equal(t, "*.n.0", s.Notebook())
	assert.Panics(t, func() { s.MustGet("c.3.1") })
}

func TestHistory_Chain(t *testing.T) {
	t.Parallel()

	s := newFixture(t)
	st := history.NewStage(s)

	h, ok := s.History("c.2")
	require.True(t, ok)
	assert.Equal(t, "c.2", h.Key())
	assert.Equal(t, 1, h.Len())
	assert.Nil(t, h.Star())

	star := st.MarkAsEdited("c.2.0")
	assert.Same(t, star, h.Star())
	assert.Same(t, star.Value, h.Latest())
	assert.Panics(t, func() { h.SetLatestToStar(&history.Star{Value: star.Value.Clone()}) })

	n := h.DeStar(4)
	assert.Equal(t, 1, n.Common().Version)
	assert.Equal(t, 4, n.Common().Created)
	assert.Len(t, h.Versions(), 2)
	assert.Same(t, n, h.LastSaved())
	assert.Panics(t, func() { h.DeStar(5) })
}

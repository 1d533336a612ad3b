// File: internal/extract/locator_test.go
package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cardHTML = `<html><body><div class="card" data-id="42">
  <span class="name">  Ana
     Souza </span>
  <span class="status">Status is offline</span>
  <ul><li>first</li><li>second</li><li>third</li></ul>
  <a href="/in/ana">profile</a>
  <p>Connection • 3rd+ degree</p>
</div></body></html>`

func TestStrategies(t *testing.T) {
	doc, err := ParseDocument(cardHTML)
	require.NoError(t, err)
	container := doc.Find("div.card")

	t.Run("attribute match text", func(t *testing.T) {
		s, err := NewAttributeMatch(".name", "", "")
		require.NoError(t, err)
		v, ok := s.Resolve(container)
		assert.True(t, ok)
		assert.Equal(t, "Ana Souza", v)
	})

	t.Run("attribute match on the container itself", func(t *testing.T) {
		s, err := NewAttributeMatch("[data-id]", "data-id", "")
		require.NoError(t, err)
		v, ok := s.Resolve(container)
		assert.True(t, ok)
		assert.Equal(t, "42", v)
	})

	t.Run("attribute match contains filter", func(t *testing.T) {
		s, err := NewAttributeMatch("a", "href", "/company/")
		require.NoError(t, err)
		_, ok := s.Resolve(container)
		assert.False(t, ok)
	})

	t.Run("structural position", func(t *testing.T) {
		s, err := NewStructuralPosition("li", 1, "")
		require.NoError(t, err)
		v, ok := s.Resolve(container)
		assert.True(t, ok)
		assert.Equal(t, "second", v)

		last, err := NewStructuralPosition("li", -1, "")
		require.NoError(t, err)
		v, _ = last.Resolve(container)
		assert.Equal(t, "third", v)

		outOfRange, err := NewStructuralPosition("li", 5, "")
		require.NoError(t, err)
		_, ok = outOfRange.Resolve(container)
		assert.False(t, ok)
	})

	t.Run("text pattern", func(t *testing.T) {
		s, err := NewTextPattern("p", `•\s*(\d\w+\+?)`)
		require.NoError(t, err)
		v, ok := s.Resolve(container)
		assert.True(t, ok)
		assert.Equal(t, "3rd+", v)
	})

	t.Run("invalid inputs", func(t *testing.T) {
		_, err := NewTextPattern("p", `(`)
		assert.Error(t, err)
		_, err = NewAttributeMatch("[[", "", "")
		assert.Error(t, err)
	})
}

func TestChain(t *testing.T) {
	doc, err := ParseDocument(cardHTML)
	require.NoError(t, err)
	container := doc.Find("div.card")

	chain, err := NewChain("name", []StrategySpec{
		{Kind: KindAttribute, Selector: ".missing"},
		{Kind: KindAttribute, Selector: ".status"},
		{Kind: KindPosition, Selector: "span", Index: 0},
	}, rejectPlaceholders(DefaultSelectors().Placeholders))
	require.NoError(t, err)
	require.Len(t, chain.Strategies, 3)

	v, ok := chain.Resolve(container)
	assert.True(t, ok)
	assert.Equal(t, "Ana Souza", v, "the placeholder status is skipped in favour of the next strategy")

	again, _ := chain.Resolve(container)
	assert.Equal(t, v, again)

	empty := Chain{Field: "none"}
	_, ok = empty.Resolve(container)
	assert.False(t, ok)
}

func TestRejectPlaceholders(t *testing.T) {
	valid := rejectPlaceholders(DefaultSelectors().Placeholders)

	assert.True(t, valid("Software Engineer"))
	assert.False(t, valid(""))
	assert.False(t, valid("LinkedIn Member"))
	assert.False(t, valid("O status está off-line"))
	assert.False(t, valid("• 2nd"))
	assert.False(t, valid("conexão de 2º grau"))
}

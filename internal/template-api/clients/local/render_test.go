package local

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderString(t *testing.T) {
	ctx := renderContext(map[string]interface{}{"name": "orders"})

	out, err := renderString(`db = "{{ values.name }}" / {{ name }}`, ctx)
	require.NoError(t, err)
	assert.Equal(t, `db = "orders" / orders`, out)

	out, err = renderString(`size = {{ values.size | default('small') }}`, ctx)
	require.NoError(t, err)
	assert.Equal(t, "size = small", out)
}

func TestRenderString_UndefinedIsAnError(t *testing.T) {
	ctx := renderContext(map[string]interface{}{"name": "orders"})

	_, err := renderString(`x = "{{ values.missing }}"`, ctx)
	assert.Error(t, err)

	_, err = renderString(`x = "{{ missing }}"`, ctx)
	assert.Error(t, err)
}

func TestRenderName(t *testing.T) {
	ctx := renderContext(map[string]interface{}{"name": "orders"})

	name, err := renderName("{{ values.name }}.tf", ctx)
	require.NoError(t, err)
	assert.Equal(t, "orders.tf", name)

	name, err = renderName("plain.txt", ctx)
	require.NoError(t, err)
	assert.Equal(t, "plain.txt", name)
}

package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResponseShapes(t *testing.T) {
	paged := DecodeResponse([]byte(`{"content":[{"totalSales":1},{"totalSales":2}],"number":1,"totalPages":4,"totalElements":31}`))
	assert.Equal(t, ResponsePaged, paged.Kind)
	assert.Len(t, paged.Records, 2)
	require.NotNil(t, paged.Page)
	assert.Equal(t, PageMeta{Page: 1, TotalPages: 4, TotalElements: 31}, *paged.Page)

	list := DecodeResponse([]byte(`[{"totalSales":1}, 7, {"totalSales":3}]`))
	assert.Equal(t, ResponseList, list.Kind)
	assert.Len(t, list.Records, 2)
	assert.Nil(t, list.Page)

	single := DecodeResponse([]byte(`{"totalSales":5,"date":"2025-10-01"}`))
	assert.Equal(t, ResponseSingle, single.Kind)
	assert.Len(t, single.Records, 1)

	wrapped := DecodeResponse([]byte(`{"data":[{"totalSales":1}]}`))
	assert.Equal(t, ResponseList, wrapped.Kind)
}

func TestDecodeResponseMalformedDegradesToEmpty(t *testing.T) {
	for _, body := range []string{``, `   `, `{"broken"`, `42`, `"text"`, `null`} {
		resp := DecodeResponse([]byte(body))
		assert.Equal(t, ResponseEmpty, resp.Kind, "body %q", body)
		assert.Empty(t, resp.Records)
	}

	resp := DecodeResponse([]byte(`{"content":"nope","totalPages":2}`))
	assert.Equal(t, ResponsePaged, resp.Kind)
	assert.Empty(t, resp.Records)
}

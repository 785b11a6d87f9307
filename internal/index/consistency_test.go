package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCount(t *testing.T) {
	assert.Nil(t, checkCount("vector", 3, 3))

	issue := checkCount("keyword", 5, 2)
	require.NotNil(t, issue)
	assert.Equal(t, "keyword", issue.Index)
	assert.Equal(t, 5, issue.Expected)
	assert.Equal(t, 2, issue.Found)
}

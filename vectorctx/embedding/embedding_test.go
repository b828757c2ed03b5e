package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrepareCollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", prepare("  a\n b\t\tc  "))
}

func TestDimensionsByModel(t *testing.T) {
	assert.Equal(t, 1536, (&OpenAI{model: ModelSmall}).Dimensions())
	assert.Equal(t, 3072, (&OpenAI{model: ModelLarge}).Dimensions())
}

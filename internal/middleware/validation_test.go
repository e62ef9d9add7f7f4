package middleware

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateQuery(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateQuery("what's on my calendar"))
	assert.Error(t, ValidateQuery(""))
	assert.Error(t, ValidateQuery(strings.Repeat("a", 100001)))
	assert.Error(t, ValidateQuery(string([]byte{0xff, 0xfe})))
}

func TestValidateConversationID(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateConversationID("018f4d2e-5b7a-7c3d-9e1f-2a3b4c5d6e7f"))
	assert.Error(t, ValidateConversationID("not-a-uuid"))
	assert.Error(t, ValidateConversationID(""))
}

func TestValidateTitle(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateTitle(""))
	assert.NoError(t, ValidateTitle("weekly planning"))
	assert.Error(t, ValidateTitle(strings.Repeat("t", 257)))
}

func TestValidateDocumentContent(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateDocumentContent("notes"))
	assert.NoError(t, ValidateDocumentContent(""))
	assert.Error(t, ValidateDocumentContent(strings.Repeat("b", 1000001)))
}

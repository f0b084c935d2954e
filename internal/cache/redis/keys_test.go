package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeysAreNamespaced(t *testing.T) {
	assert.Equal(t, "arbengine:quote:max:BTCTWD", quoteKey("max", "BTCTWD"))
	assert.Equal(t, "arbengine:ratelimit:api:10.0.0.7", rateLimitKey("api:10.0.0.7"))
}

package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyWithPrefix(t *testing.T) {
	assert.Equal(t, "otelsamples:queue:celery", KeyWithPrefix("", "queue", "celery"))
	assert.Equal(t, "demo:result:1", KeyWithPrefix("demo", "result", "", "1"))
	assert.Equal(t, "demo", KeyWithPrefix("demo"))
}

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRedisClientValidation(t *testing.T) {
	ctx := context.Background()

	_, err := NewRedisClient(ctx, "")
	assert.ErrorContains(t, err, "redis url is required")

	_, err = NewRedisClient(ctx, "http://localhost:6379")
	assert.ErrorContains(t, err, "parse redis URL")
}

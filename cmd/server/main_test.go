package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bullion/compliance-service/internal/pkg/logger"
)

func TestFinish(t *testing.T) {
	log := logger.NewNop()

	assert.Equal(t, 0, finish(log, nil))
	assert.Equal(t, 1, finish(log, errors.New("http server: bind: address already in use")))
}

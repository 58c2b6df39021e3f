package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProbeMemoizes(t *testing.T) {
	ctx := context.Background()
	calls := 0
	p := NewProbe("test", func(context.Context) (bool, error) {
		calls++
		return true, nil
	}, nil)

	assert.True(t, p.Supported(ctx))
	assert.True(t, p.Supported(ctx))
	assert.True(t, p.Supported(ctx))
	assert.Equal(t, 1, calls)
}

func TestProbeErrorMeansUnsupported(t *testing.T) {
	ctx := context.Background()
	calls := 0
	p := NewProbe("test", func(context.Context) (bool, error) {
		calls++
		return false, errors.New("connection refused")
	}, nil)

	assert.False(t, p.Supported(ctx))
	assert.False(t, p.Supported(ctx))
	assert.Equal(t, 1, calls)
}

func TestMarkUnsupportedPins(t *testing.T) {
	ctx := context.Background()
	p := NewProbe("test", func(context.Context) (bool, error) {
		return true, nil
	}, nil)

	assert.True(t, p.Supported(ctx))
	p.MarkUnsupported()
	assert.False(t, p.Supported(ctx))
}

func TestStaticDefaultsSupported(t *testing.T) {
	ctx := context.Background()
	caps := Static()
	assert.True(t, caps.FactType.Supported(ctx))
	assert.True(t, caps.SubjectLinks.Supported(ctx))
}

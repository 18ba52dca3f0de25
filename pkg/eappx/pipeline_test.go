package eappx

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPipelinePanicsWithoutContext(t *testing.T) {
	assert.Panics(t, func() {
		buildPipeline(bytes.NewReader(nil), false, true, nil)
	})
}

func TestBuildPipelinePassThrough(t *testing.T) {
	data := []byte("plain bytes, no layers")
	r := buildPipeline(bytes.NewReader(data), false, false, nil)
	got := make([]byte, len(data))
	_, err := r.Read(got)
	assert.NoError(t, err)
	assert.Equal(t, data, got)
}

package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbeOutput(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		duration float64
		codec    string
		format   string
	}{
		{
			name:     "ogg opus",
			json:     `{"streams":[{"codec_type":"audio","codec_name":"opus","sample_rate":"48000","channels":1}],"format":{"duration":"12.480000","size":"51234","format_name":"ogg"}}`,
			duration: 12.48,
			codec:    "opus",
			format:   "ogg",
		},
		{
			name:     "webm without duration",
			json:     `{"streams":[{"codec_type":"video","codec_name":"vp8"},{"codec_type":"audio","codec_name":"opus","sample_rate":"48000","channels":2}],"format":{"format_name":"matroska,webm"}}`,
			duration: 0,
			codec:    "opus",
			format:   "matroska",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := parseProbeOutput(tt.json, 10)
			require.NoError(t, err)
			assert.InDelta(t, tt.duration, info.Duration, 1e-9)
			assert.Equal(t, tt.codec, info.Codec)
			assert.Equal(t, tt.format, info.Format)
		})
	}

	_, err := parseProbeOutput("not json", 0)
	assert.Error(t, err)
}

package util

import (
	"context"
	"testing"
	"time"

	"lsrw_console/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(12, model.Teacher, "Ms. Chen", "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, uint(12), claims.UserID)
	assert.Equal(t, model.Teacher, claims.Role)

	_, err = ParseJWT(token, "other")
	assert.Error(t, err)

	expired, err := GenerateJWT(12, model.Teacher, "Ms. Chen", "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired, "secret")
	assert.Error(t, err)
}

func TestBearerContext(t *testing.T) {
	assert.Empty(t, BearerFrom(context.Background()))
	assert.Equal(t, "abc", BearerFrom(WithBearer(context.Background(), "abc")))
}

func TestAudioHelpers(t *testing.T) {
	mime, err := DetectAudio([]byte("OggS\x00\x02rest-of-page"))
	require.NoError(t, err)
	assert.Equal(t, MimeOgg, mime)
	assert.Equal(t, ".ogg", AudioExtension(mime))

	_, err = DetectAudio(nil)
	assert.ErrorIs(t, err, ErrInvalidAudio)
	_, err = DetectAudio([]byte("hello world"))
	assert.ErrorIs(t, err, ErrInvalidAudio)
}

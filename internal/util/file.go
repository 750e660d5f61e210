package util

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
)

// ValidateMimeType 深度校验文件 MIME 类型
// allowedTypes: 允许的 MIME 前缀或完整类型，如 "audio/", "video/webm"
func ValidateMimeType(reader io.Reader, allowedTypes []string) (string, error) {
	buffer := make([]byte, 512)
	n, err := reader.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}

	// 检测 MIME 类型
	mimeType := http.DetectContentType(buffer[:n])
	// DetectContentType 可能带参数，如 "audio/wave; codecs=1"
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	for _, allowed := range allowedTypes {
		if strings.HasPrefix(mimeType, allowed) || mimeType == allowed {
			return mimeType, nil
		}
	}

	return mimeType, errors.New("invalid file type: " + mimeType)
}

// DetectAudio 校验录音片段并返回其 MIME 类型
func DetectAudio(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrInvalidAudio
	}
	mimeType, err := ValidateMimeType(bytes.NewReader(data), AllowedAudioTypes)
	if err != nil {
		return mimeType, errors.Join(ErrInvalidAudio, err)
	}
	return mimeType, nil
}

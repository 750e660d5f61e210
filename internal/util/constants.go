package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

// 语音点评相关常量
const (
	MimeAudio       = "audio/"
	MimeOgg         = "application/ogg"
	MimeWebM        = "video/webm" // 浏览器 MediaRecorder 输出的 webm 会被识别为 video/webm
	MimeMP4         = "video/mp4"
	MimeOctetStream = "application/octet-stream"

	FeedbackAudioPrefix = "feedback-audio/"
)

var (
	AllowedAudioTypes = []string{MimeAudio, MimeOgg, MimeWebM, MimeMP4}

	audioExtensions = map[string]string{
		"audio/wave":      ".wav",
		"audio/wav":       ".wav",
		"audio/mpeg":      ".mp3",
		"audio/ogg":       ".ogg",
		"application/ogg": ".ogg",
		"video/webm":      ".webm",
		"audio/webm":      ".webm",
		"video/mp4":       ".m4a",
		"audio/mp4":       ".m4a",
	}
)

// AudioExtension 根据 MIME 类型给出文件后缀
func AudioExtension(mimeType string) string {
	if ext, ok := audioExtensions[mimeType]; ok {
		return ext
	}
	return ".bin"
}

package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"lsrw_console/internal/config"
	"lsrw_console/internal/util"
	"os/exec"
	"strconv"
	"sync"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// NewMicrophone 按配置选择录音来源
// 关闭语音点评时开启录音一律返回 ErrMicrophoneUnavailable
func NewMicrophone(cfg config.AudioConfig) Microphone {
	if !cfg.Enabled {
		return &UploadMicrophone{}
	}
	if cfg.Source == config.AudioSourceFFmpeg {
		return &FFmpegMicrophone{
			Device:      cfg.Device,
			InputFormat: cfg.InputFormat,
			MaxSeconds:  cfg.MaxSeconds,
		}
	}
	return &UploadMicrophone{Enabled: true, MaxBytes: MaxClipBytes(cfg.MaxSeconds)}
}

// MaxClipBytes 按 256kbps(32KiB/s) 估算单条录音的字节上限
func MaxClipBytes(maxSeconds int) int {
	if maxSeconds <= 0 {
		maxSeconds = 300
	}
	return maxSeconds * 32 * 1024
}

// UploadMicrophone 浏览器端 MediaRecorder 采集，分片上传到会话
type UploadMicrophone struct {
	Enabled  bool
	MaxBytes int
}

func (m *UploadMicrophone) Open(ctx context.Context, submissionID uint) (Track, error) {
	if !m.Enabled {
		return nil, util.ErrMicrophoneUnavailable
	}
	return &bufferTrack{maxBytes: m.MaxBytes}, nil
}

type bufferTrack struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	maxBytes int
	stopped  bool
}

func (t *bufferTrack) WriteChunk(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return util.ErrNoActiveRecording
	}
	if t.maxBytes > 0 && t.buf.Len()+len(data) > t.maxBytes {
		return fmt.Errorf("%w: clip exceeds %d bytes", util.ErrInvalidAudio, t.maxBytes)
	}
	t.buf.Write(data)
	return nil
}

func (t *bufferTrack) Stop() (Clip, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.buf.Len() == 0 {
		return Clip{}, nil
	}
	data := append([]byte(nil), t.buf.Bytes()...)
	contentType, err := util.DetectAudio(data)
	if err != nil {
		contentType = util.MimeOctetStream
	}
	return Clip{Data: data, ContentType: contentType}, nil
}

// FFmpegMicrophone 通过 ffmpeg 直接采集本机输入设备（pulse/alsa/avfoundation/dshow）
type FFmpegMicrophone struct {
	Device      string
	InputFormat string
	MaxSeconds  int
}

func (m *FFmpegMicrophone) Open(ctx context.Context, submissionID uint) (Track, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not installed", util.ErrMicrophoneUnavailable)
	}
	if m.Device == "" || m.InputFormat == "" {
		return nil, fmt.Errorf("%w: no input device configured", util.ErrMicrophoneUnavailable)
	}

	outArgs := ffmpeg.KwArgs{"f": "ogg", "c:a": "libopus", "b:a": "64k"}
	if m.MaxSeconds > 0 {
		outArgs["t"] = strconv.Itoa(m.MaxSeconds)
	}

	cmd := ffmpeg.Input(m.Device, ffmpeg.KwArgs{"f": m.InputFormat}).
		Output("pipe:1", outArgs).
		OverWriteOutput().
		Compile()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrMicrophoneUnavailable, err)
	}

	t := &ffmpegTrack{cmd: cmd, stdin: stdin, done: make(chan struct{})}
	cmd.Stdout = &t.out
	cmd.Stderr = &t.errOut

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrMicrophoneUnavailable, err)
	}
	go func() {
		t.waitErr = cmd.Wait()
		close(t.done)
	}()

	// 设备不存在时 ffmpeg 会立即退出
	select {
	case <-t.done:
		return nil, fmt.Errorf("%w: %s", util.ErrMicrophoneUnavailable, lastLine(t.errOut.String()))
	case <-time.After(300 * time.Millisecond):
	case <-ctx.Done():
		t.kill()
		return nil, ctx.Err()
	}
	return t, nil
}

type ffmpegTrack struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	out     bytes.Buffer
	errOut  bytes.Buffer
	done    chan struct{}
	waitErr error
}

func (t *ffmpegTrack) kill() {
	if t.cmd.Process != nil {
		t.cmd.Process.Kill()
	}
	<-t.done
}

func (t *ffmpegTrack) Stop() (Clip, error) {
	// 向 ffmpeg 发送 q 正常结束，写出容器尾部
	t.stdin.Write([]byte("q"))
	t.stdin.Close()

	select {
	case <-t.done:
	case <-time.After(5 * time.Second):
		t.kill()
	}

	if t.out.Len() == 0 {
		if t.waitErr != nil {
			return Clip{}, fmt.Errorf("%w: %s", util.ErrMicrophoneUnavailable, lastLine(t.errOut.String()))
		}
		return Clip{}, nil
	}
	return Clip{Data: append([]byte(nil), t.out.Bytes()...), ContentType: "audio/ogg"}, nil
}

func lastLine(s string) string {
	s = string(bytes.TrimSpace([]byte(s)))
	if i := bytes.LastIndexByte([]byte(s), '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

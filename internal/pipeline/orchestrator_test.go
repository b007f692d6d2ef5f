package pipeline

import (
	"context"
	"errors"
	"figmant-go/internal/model"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeValidator struct {
	result *ValidationResult
	err    error
	calls  int
}

func (v *fakeValidator) Validate(fileName, contentType string, data []byte, maxSize int64) (*ValidationResult, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	return v.result, nil
}

type fakeResizer struct {
	block chan struct{} // 非 nil 时 Resize 挂起直到通道关闭
	calls int
}

func (r *fakeResizer) Resize(data []byte) ([]byte, *model.ProcessingInfo, error) {
	r.calls++
	if r.block != nil {
		<-r.block
	}
	return []byte("resized"), &model.ProcessingInfo{
		OriginalSize:  int64(len(data)),
		ProcessedSize: 7,
		Width:         10,
		Height:        10,
	}, nil
}

type fakeUploader struct {
	mu       sync.Mutex
	failures int // 前 N 次调用返回错误
	calls    int
	path     string
}

func (u *fakeUploader) Upload(ctx context.Context, userID uint, fileName string, data []byte, contentType string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if u.calls <= u.failures {
		return "", errors.New("connection reset")
	}
	if u.path == "" {
		u.path = "uploads/1/test.png"
	}
	return u.path, nil
}

// sleepRecorder 记录编排器请求的等待时长，不实际等待。
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return nil
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

func newTestOrchestrator(v Validator, r Resizer, u Uploader, store *StatusStore, rec *sleepRecorder) *Orchestrator {
	return NewOrchestrator(v, r, u, store, Options{
		MaxRetries:  2,
		BackoffUnit: time.Second,
		Sleep:       rec.sleep,
	})
}

func seedAttachment(store *StatusStore, id string) {
	store.Put(model.Attachment{
		ID:        id,
		UserID:    1,
		Type:      model.AttachmentTypeImage,
		Name:      "design.png",
		Status:    model.AttachmentStatusPending,
		CreatedAt: time.Now(),
	})
}

func TestRunSucceedsThroughFullChain(t *testing.T) {
	store := NewStatusStore()
	seedAttachment(store, "att-1")

	updates, cancel := store.Subscribe()
	defer cancel()

	validator := &fakeValidator{result: &ValidationResult{NeedsResize: true, Width: 9000, Height: 4000}}
	uploader := &fakeUploader{}
	rec := &sleepRecorder{}
	orch := newTestOrchestrator(validator, &fakeResizer{}, uploader, store, rec)

	orch.Run(context.Background(), Input{
		AttachmentID: "att-1",
		UserID:       1,
		FileName:     "design.png",
		ContentType:  "image/png",
		Data:         []byte("pngdata"),
		MaxSize:      DefaultMaxChatFileSize,
	})

	att, ok := store.Get("att-1")
	require.True(t, ok)
	require.Equal(t, model.AttachmentStatusUploaded, att.Status)
	require.Equal(t, "uploads/1/test.png", att.UploadPath)
	require.NotNil(t, att.ProcessingInfo)
	require.Empty(t, att.ErrorMessage)
	require.Empty(t, rec.recorded())

	// 状态按 processing → uploading → uploaded 顺序推进
	var statuses []model.AttachmentStatus
	for len(updates) > 0 {
		statuses = append(statuses, (<-updates).Status)
	}
	require.Equal(t, []model.AttachmentStatus{
		model.AttachmentStatusProcessing,
		model.AttachmentStatusUploading,
		model.AttachmentStatusUploaded,
	}, statuses)
}

func TestRunRetriesUpToCapWithLinearBackoff(t *testing.T) {
	store := NewStatusStore()
	seedAttachment(store, "att-2")

	validator := &fakeValidator{result: &ValidationResult{}}
	uploader := &fakeUploader{failures: 100} // 永远失败
	rec := &sleepRecorder{}
	orch := newTestOrchestrator(validator, &fakeResizer{}, uploader, store, rec)

	orch.Run(context.Background(), Input{
		AttachmentID: "att-2",
		UserID:       1,
		FileName:     "doc.pdf",
		ContentType:  "application/pdf",
		Data:         []byte("pdfdata"),
		MaxSize:      DefaultMaxChatFileSize,
	})

	// 共 3 次尝试，之后不再重试
	require.Equal(t, 3, uploader.calls)
	// 线性退避：1s, 2s
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.recorded())

	att, _ := store.Get("att-2")
	require.Equal(t, model.AttachmentStatusError, att.Status)
	require.Contains(t, att.ErrorMessage, "3 次")
}

func TestRunRecoversOnSecondAttempt(t *testing.T) {
	store := NewStatusStore()
	seedAttachment(store, "att-3")

	validator := &fakeValidator{result: &ValidationResult{}}
	uploader := &fakeUploader{failures: 1}
	rec := &sleepRecorder{}
	orch := newTestOrchestrator(validator, &fakeResizer{}, uploader, store, rec)

	orch.Run(context.Background(), Input{
		AttachmentID: "att-3",
		UserID:       1,
		FileName:     "doc.pdf",
		ContentType:  "application/pdf",
		Data:         []byte("pdfdata"),
		MaxSize:      DefaultMaxChatFileSize,
	})

	require.Equal(t, 2, uploader.calls)
	require.Equal(t, []time.Duration{time.Second}, rec.recorded())

	att, _ := store.Get("att-3")
	require.Equal(t, model.AttachmentStatusUploaded, att.Status)
	require.Empty(t, att.ErrorMessage)
}

func TestRunValidationFailureIsTerminal(t *testing.T) {
	store := NewStatusStore()
	seedAttachment(store, "att-4")

	validator := &fakeValidator{err: &ValidationError{Reason: "不支持的文件类型 'text/plain': notes.txt"}}
	uploader := &fakeUploader{}
	rec := &sleepRecorder{}
	orch := newTestOrchestrator(validator, &fakeResizer{}, uploader, store, rec)

	orch.Run(context.Background(), Input{
		AttachmentID: "att-4",
		UserID:       1,
		FileName:     "notes.txt",
		ContentType:  "text/plain",
		Data:         []byte("hello"),
		MaxSize:      DefaultMaxChatFileSize,
	})

	// 校验失败不重试、不退避
	require.Equal(t, 1, validator.calls)
	require.Equal(t, 0, uploader.calls)
	require.Empty(t, rec.recorded())

	att, _ := store.Get("att-4")
	require.Equal(t, model.AttachmentStatusError, att.Status)
	require.Contains(t, att.ErrorMessage, "不支持的文件类型")
}

func TestRunProcessingTimeoutIsTerminalAndDistinct(t *testing.T) {
	store := NewStatusStore()
	seedAttachment(store, "att-5")

	block := make(chan struct{})
	defer close(block)
	resizer := &fakeResizer{block: block}
	validator := &fakeValidator{result: &ValidationResult{NeedsResize: true}}
	uploader := &fakeUploader{}
	rec := &sleepRecorder{}
	orch := NewOrchestrator(validator, resizer, uploader, store, Options{
		MaxRetries:     2,
		BackoffUnit:    time.Second,
		ProcessTimeout: 30 * time.Millisecond,
		Sleep:          rec.sleep,
	})

	orch.Run(context.Background(), Input{
		AttachmentID: "att-5",
		UserID:       1,
		FileName:     "huge.png",
		ContentType:  "image/png",
		Data:         []byte("pngdata"),
		MaxSize:      DefaultMaxChatFileSize,
	})

	// 超时立即终态：不进入上传，也不消耗重试预算
	require.Equal(t, 0, uploader.calls)
	require.Empty(t, rec.recorded())

	att, _ := store.Get("att-5")
	require.Equal(t, model.AttachmentStatusError, att.Status)
	require.Contains(t, att.ErrorMessage, "处理超时")
	require.Equal(t, 0, orch.PendingProcessingCount())
}

func TestRunShutdownDuringResizeIsNotATimeout(t *testing.T) {
	store := NewStatusStore()
	seedAttachment(store, "att-8")

	block := make(chan struct{})
	defer close(block)
	resizer := &fakeResizer{block: block}
	validator := &fakeValidator{result: &ValidationResult{NeedsResize: true}}
	uploader := &fakeUploader{}
	rec := &sleepRecorder{}
	orch := NewOrchestrator(validator, resizer, uploader, store, Options{
		MaxRetries:     2,
		BackoffUnit:    time.Second,
		ProcessTimeout: time.Minute,
		Sleep:          rec.sleep,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	orch.Run(ctx, Input{
		AttachmentID: "att-8",
		UserID:       1,
		FileName:     "huge.png",
		ContentType:  "image/png",
		Data:         []byte("pngdata"),
		MaxSize:      DefaultMaxChatFileSize,
	})

	// 进程退出时取消 ctx：附件不得被误判为处理超时的终态失败
	att, _ := store.Get("att-8")
	require.NotEqual(t, model.AttachmentStatusError, att.Status)
	require.Empty(t, att.ErrorMessage)
	require.Equal(t, 0, uploader.calls)
}

func TestRunStorageWaitGateIsBounded(t *testing.T) {
	store := NewStatusStore()
	seedAttachment(store, "att-6")

	validator := &fakeValidator{result: &ValidationResult{}}
	uploader := &fakeUploader{}
	rec := &sleepRecorder{}
	orch := NewOrchestrator(validator, &fakeResizer{}, uploader, store, Options{
		MaxRetries:       2,
		BackoffUnit:      time.Second,
		StorageWaitDelay: 2 * time.Second,
		StorageWaitMax:   3,
		StorageReady:     func() bool { return false },
		Sleep:            rec.sleep,
	})

	orch.Run(context.Background(), Input{
		AttachmentID: "att-6",
		UserID:       1,
		FileName:     "doc.pdf",
		ContentType:  "application/pdf",
		Data:         []byte("pdfdata"),
		MaxSize:      DefaultMaxChatFileSize,
	})

	// 存储始终未就绪：等待 3 次后放弃，处理链从未启动
	require.Equal(t, 0, validator.calls)
	require.Len(t, rec.recorded(), 3)

	att, _ := store.Get("att-6")
	require.Equal(t, model.AttachmentStatusError, att.Status)
	require.Contains(t, att.ErrorMessage, "存储服务暂不可用")
}

func TestRunStorageWaitDoesNotConsumeRetryBudget(t *testing.T) {
	store := NewStatusStore()
	seedAttachment(store, "att-7")

	readyAfter := 2
	waits := 0
	validator := &fakeValidator{result: &ValidationResult{}}
	uploader := &fakeUploader{failures: 2}
	rec := &sleepRecorder{}
	orch := NewOrchestrator(validator, &fakeResizer{}, uploader, store, Options{
		MaxRetries:  2,
		BackoffUnit: time.Second,
		StorageReady: func() bool {
			if waits < readyAfter {
				waits++
				return false
			}
			return true
		},
		Sleep: rec.sleep,
	})

	orch.Run(context.Background(), Input{
		AttachmentID: "att-7",
		UserID:       1,
		FileName:     "doc.pdf",
		ContentType:  "application/pdf",
		Data:         []byte("pdfdata"),
		MaxSize:      DefaultMaxChatFileSize,
	})

	// 2 次存储等待 + 2 次重试退避，最终第 3 次尝试成功
	require.Equal(t, 3, uploader.calls)
	require.Len(t, rec.recorded(), 4)

	att, _ := store.Get("att-7")
	require.Equal(t, model.AttachmentStatusUploaded, att.Status)
}

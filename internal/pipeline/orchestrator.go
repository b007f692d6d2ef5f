package pipeline

import (
	"context"
	"errors"
	"figmant-go/internal/model"
	"figmant-go/pkg/log"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMaxRetries 是瞬态失败后的最大重试次数（共 3 次尝试）。
	DefaultMaxRetries = 2
	// DefaultBackoffUnit 是线性退避的基准间隔：第 k 次重试前等待 k*单位。
	DefaultBackoffUnit = time.Second
	// DefaultProcessTimeout 是单次图片处理尝试的硬超时，独立于重试预算。
	// 畸形输入可能让解码挂起，网络上传则是瞬态失败——两种故障模式
	// 分别由超时和有界重试兜底。
	DefaultProcessTimeout = 60 * time.Second
	// DefaultStorageWaitDelay 是存储未就绪时重新进入处理链的固定延迟。
	DefaultStorageWaitDelay = 2 * time.Second
	// DefaultStorageWaitMax 是等待存储就绪的次数上限。等待不消耗重试预算，
	// 但必须有界，否则附件会在“检查存储中”里无限滞留。
	DefaultStorageWaitMax = 5
)

// ErrProcessingTimeout 表示图片处理超出硬超时。
var ErrProcessingTimeout = errors.New("图片处理超时")

// SleepFunc 是可注入的等待原语，测试中用伪时钟替换。
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Input 是一次附件处理链的输入。每次重试都从原始字节重新开始，
// 不复用上一次尝试的中间产物。
type Input struct {
	AttachmentID string
	UserID       uint
	FileName     string
	ContentType  string
	Data         []byte
	MaxSize      int64
}

// Options 配置编排器的行为，零值字段使用默认常量。
type Options struct {
	MaxRetries       int
	BackoffUnit      time.Duration
	ProcessTimeout   time.Duration
	StorageWaitDelay time.Duration
	StorageWaitMax   int
	// StorageReady 报告对象存储是否可用；nil 表示视为始终可用。
	StorageReady func() bool
	// Sleep 为 nil 时使用真实时钟。
	Sleep SleepFunc
}

// Orchestrator 以有界重试监督 校验→压缩→上传 处理链。
// 所有处理失败都收敛到状态存储里，不向上层传播。
type Orchestrator struct {
	validator Validator
	resizer   Resizer
	uploader  Uploader
	store     *StatusStore

	maxRetries       int
	backoffUnit      time.Duration
	processTimeout   time.Duration
	storageWaitDelay time.Duration
	storageWaitMax   int
	storageReady     func() bool
	sleep            SleepFunc

	// pendingProcessing 跟踪正在做图片处理的附件，超时或完成后移除。
	pendingMu         sync.Mutex
	pendingProcessing map[string]struct{}
}

// NewOrchestrator 创建一个新的 Orchestrator 实例。
func NewOrchestrator(validator Validator, resizer Resizer, uploader Uploader, store *StatusStore, opts Options) *Orchestrator {
	o := &Orchestrator{
		validator:         validator,
		resizer:           resizer,
		uploader:          uploader,
		store:             store,
		maxRetries:        opts.MaxRetries,
		backoffUnit:       opts.BackoffUnit,
		processTimeout:    opts.ProcessTimeout,
		storageWaitDelay:  opts.StorageWaitDelay,
		storageWaitMax:    opts.StorageWaitMax,
		storageReady:      opts.StorageReady,
		sleep:             opts.Sleep,
		pendingProcessing: make(map[string]struct{}),
	}
	if o.maxRetries <= 0 {
		o.maxRetries = DefaultMaxRetries
	}
	if o.backoffUnit <= 0 {
		o.backoffUnit = DefaultBackoffUnit
	}
	if o.processTimeout <= 0 {
		o.processTimeout = DefaultProcessTimeout
	}
	if o.storageWaitDelay <= 0 {
		o.storageWaitDelay = DefaultStorageWaitDelay
	}
	if o.storageWaitMax <= 0 {
		o.storageWaitMax = DefaultStorageWaitMax
	}
	if o.storageReady == nil {
		o.storageReady = func() bool { return true }
	}
	if o.sleep == nil {
		o.sleep = defaultSleep
	}
	return o
}

// Run 执行一个附件的完整处理链（含重试），直到到达终态或 ctx 取消。
// 终态一律写入状态存储，Run 本身不返回错误。
func (o *Orchestrator) Run(ctx context.Context, in Input) {
	// 1. 存储就绪门控：等待不消耗重试预算，但有界
	for waits := 0; !o.storageReady(); waits++ {
		if waits >= o.storageWaitMax {
			log.Warnf("[Orchestrator] 等待存储就绪超过 %d 次，附件置为失败: %s", o.storageWaitMax, in.AttachmentID)
			o.fail(in.AttachmentID, "存储服务暂不可用，请稍后重试")
			return
		}
		o.store.Apply(in.AttachmentID, func(a model.Attachment) model.Attachment {
			a.Status = model.AttachmentStatusPending
			a.StatusReason = "waiting for storage"
			return a
		})
		log.Infof("[Orchestrator] 存储未就绪，%s 后重新进入处理链: %s", o.storageWaitDelay, in.AttachmentID)
		if err := o.sleep(ctx, o.storageWaitDelay); err != nil {
			return
		}
	}

	// 2. 有界重试循环
	totalAttempts := o.maxRetries + 1
	for attempt := 0; attempt < totalAttempts; attempt++ {
		err := o.attempt(ctx, in)
		if err == nil {
			return
		}

		// 校验失败立即终态，不重试
		var verr *ValidationError
		if errors.As(err, &verr) {
			log.Warnf("[Orchestrator] 附件校验失败: %s, reason: %s", in.AttachmentID, verr.Reason)
			o.fail(in.AttachmentID, verr.Reason)
			return
		}
		// 处理超时立即终态，不消耗剩余重试预算
		if errors.Is(err, ErrProcessingTimeout) {
			log.Warnf("[Orchestrator] 附件处理超时: %s", in.AttachmentID)
			o.fail(in.AttachmentID, "处理超时，文件可能过大")
			return
		}
		if ctx.Err() != nil {
			return
		}

		log.Warnf("[Orchestrator] 第 %d 次尝试失败: %s, error: %v", attempt+1, in.AttachmentID, err)
		if attempt < o.maxRetries {
			// 线性退避：第 k 次重试前等待 k*backoffUnit
			backoff := time.Duration(attempt+1) * o.backoffUnit
			if err := o.sleep(ctx, backoff); err != nil {
				return
			}
		}
	}

	o.fail(in.AttachmentID, fmt.Sprintf("上传失败（已尝试 %d 次），请手动重试", totalAttempts))
}

// attempt 执行一次 校验→(压缩)→上传，任何一步出错都中止本次尝试。
func (o *Orchestrator) attempt(ctx context.Context, in Input) error {
	res, err := o.validator.Validate(in.FileName, in.ContentType, in.Data, in.MaxSize)
	if err != nil {
		return err
	}

	data := in.Data
	fileName := in.FileName
	contentType := in.ContentType
	var info *model.ProcessingInfo

	if res.NeedsResize {
		o.store.Apply(in.AttachmentID, func(a model.Attachment) model.Attachment {
			a.Status = model.AttachmentStatusProcessing
			a.StatusReason = ""
			return a
		})
		o.trackProcessing(in.AttachmentID)
		data, info, err = o.resizeWithTimeout(ctx, in.Data)
		o.untrackProcessing(in.AttachmentID)
		if err != nil {
			return err
		}
		// 压缩产物统一是 JPEG，对象扩展名随之调整
		fileName = strings.TrimSuffix(fileName, fileExt(fileName)) + ".jpg"
		contentType = "image/jpeg"
	}

	o.store.Apply(in.AttachmentID, func(a model.Attachment) model.Attachment {
		a.Status = model.AttachmentStatusUploading
		a.StatusReason = ""
		return a
	})

	path, err := o.uploader.Upload(ctx, in.UserID, fileName, data, contentType)
	if err != nil {
		return fmt.Errorf("上传到对象存储失败: %w", err)
	}

	o.store.Apply(in.AttachmentID, func(a model.Attachment) model.Attachment {
		a.Status = model.AttachmentStatusUploaded
		a.StatusReason = ""
		a.UploadPath = path
		a.ErrorMessage = ""
		a.ProcessingInfo = info
		return a
	})
	return nil
}

// resizeWithTimeout 在硬超时内执行压缩。超时后压缩 goroutine 的结果被丢弃。
func (o *Orchestrator) resizeWithTimeout(ctx context.Context, data []byte) ([]byte, *model.ProcessingInfo, error) {
	tctx, cancel := context.WithTimeout(ctx, o.processTimeout)
	defer cancel()

	type resizeResult struct {
		data []byte
		info *model.ProcessingInfo
		err  error
	}
	ch := make(chan resizeResult, 1)
	go func() {
		d, i, e := o.resizer.Resize(data)
		ch <- resizeResult{data: d, info: i, err: e}
	}()

	select {
	case <-tctx.Done():
		// 父级 ctx 取消（如进程退出）不是处理超时，不能把附件推到终态
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, ErrProcessingTimeout
	case r := <-ch:
		return r.data, r.info, r.err
	}
}

func (o *Orchestrator) fail(id, message string) {
	o.store.Apply(id, func(a model.Attachment) model.Attachment {
		a.Status = model.AttachmentStatusError
		a.StatusReason = ""
		a.ErrorMessage = message
		return a
	})
}

func (o *Orchestrator) trackProcessing(id string) {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	o.pendingProcessing[id] = struct{}{}
}

func (o *Orchestrator) untrackProcessing(id string) {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	delete(o.pendingProcessing, id)
}

// PendingProcessingCount 返回正在做图片处理的附件数量。
func (o *Orchestrator) PendingProcessingCount() int {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	return len(o.pendingProcessing)
}

func fileExt(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx:]
	}
	return ""
}

package storage

import (
	"context"
	"figmant-go/internal/config"
	"figmant-go/pkg/log"
	"sync/atomic"
	"time"
)

// ready 记录最近一次探测的结果。处理管道在上传前通过 IsReady 做就绪门控。
var ready atomic.Bool

const (
	defaultProbeTimeout  = 7 * time.Second
	defaultProbeInterval = 10 * time.Second
)

// IsReady 返回最近一次可用性探测是否成功。
func IsReady() bool {
	return ready.Load()
}

// CheckAvailability 执行一次存储可用性探测（带超时的 ListBuckets），并更新就绪标志。
func CheckAvailability(ctx context.Context, timeout time.Duration) error {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := MinioClient.ListBuckets(probeCtx)
	if err != nil {
		ready.Store(false)
		return err
	}
	ready.Store(true)
	return nil
}

// StartProber 启动后台探测循环：周期性检查存储可用性，直到 ctx 结束。
// 探测失败只降级就绪标志，不中断服务。
func StartProber(ctx context.Context, cfg config.MinIOConfig) {
	timeout := defaultProbeTimeout
	if cfg.ProbeTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.ProbeTimeoutSeconds) * time.Second
	}
	interval := defaultProbeInterval
	if cfg.ProbeIntervalSeconds > 0 {
		interval = time.Duration(cfg.ProbeIntervalSeconds) * time.Second
	}

	if err := CheckAvailability(ctx, timeout); err != nil {
		log.Warnf("[StorageProber] 初次存储可用性探测失败: %v", err)
	} else {
		log.Info("[StorageProber] 存储已就绪")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wasReady := ready.Load()
			if err := CheckAvailability(ctx, timeout); err != nil {
				if wasReady {
					log.Warnf("[StorageProber] 存储可用性丢失: %v", err)
				}
			} else if !wasReady {
				log.Info("[StorageProber] 存储恢复就绪")
			}
		}
	}
}

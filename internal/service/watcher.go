package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"multisig-core/pkg/logger"
	"multisig-core/pkg/utils/lock"
)

// PendingLister 多签账本的只读部分
type PendingLister interface {
	ListPendingRequests(ctx context.Context, contractID string) ([]uint32, error)
	Invalidate(ctx context.Context, contractID string, requestIDs ...uint32)
}

// Pruner 清理已结束的签名流程
type Pruner interface {
	Prune(olderThan time.Duration) int
}

const watcherLockKey = "cron:multisig_watcher"

// Watcher 定时刷新关注合约的待确认请求 (同时更新 multisig_requests_pending 指标)，
// 并清理过期的流程。多实例部署时由分布式锁保证同一时刻只有一个实例执行
type Watcher struct {
	cron      *cron.Cron
	spec      string
	contracts []string
	ledger    PendingLister
	flows     Pruner
	locker    lock.DistributedLock
	retention time.Duration
	log       *zap.Logger
}

func NewWatcher(spec string, contracts []string, ledger PendingLister, flows Pruner, locker lock.DistributedLock) *Watcher {
	return &Watcher{
		cron:      cron.New(),
		spec:      spec,
		contracts: contracts,
		ledger:    ledger,
		flows:     flows,
		locker:    locker,
		retention: time.Hour,
		log:       logger.Named("watcher"),
	}
}

func (w *Watcher) Start() error {
	if _, err := w.cron.AddFunc(w.spec, func() { w.Poll(context.Background()) }); err != nil {
		return err
	}
	w.cron.Start()
	w.log.Info("Watcher started", zap.String("spec", w.spec), zap.Strings("contracts", w.contracts))
	return nil
}

// Stop 等待正在执行的任务结束
func (w *Watcher) Stop() {
	<-w.cron.Stop().Done()
	w.log.Info("Watcher stopped")
}

// Poll 执行一轮，返回是否拿到锁
func (w *Watcher) Poll(ctx context.Context) bool {
	locked, err := w.locker.Acquire(ctx, watcherLockKey, 30*time.Second)
	if err != nil || !locked {
		w.log.Debug("获取锁失败或已有实例在运行", zap.Error(err))
		return false
	}
	defer func() {
		if err := w.locker.Release(ctx, watcherLockKey); err != nil {
			w.log.Warn("释放锁失败", zap.Error(err))
		}
	}()

	for _, c := range w.contracts {
		w.ledger.Invalidate(ctx, c)
		ids, err := w.ledger.ListPendingRequests(ctx, c)
		if err != nil {
			w.log.Warn("查询待确认请求失败", zap.String("contract", c), zap.Error(err))
			continue
		}
		w.log.Debug("待确认请求", zap.String("contract", c), zap.Int("count", len(ids)))
	}

	if w.flows != nil {
		if n := w.flows.Prune(w.retention); n > 0 {
			w.log.Info("已清理过期流程", zap.Int("count", n))
		}
	}
	return true
}

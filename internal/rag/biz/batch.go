package biz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/sentinel-rag/pkg/errors"
	"github.com/kart-io/sentinel-rag/pkg/infra/pool"
)

// MaxBatchSize 单次批量查询的最大条数。
const MaxBatchSize = 100

// batchDrainTimeout 关闭时等待进行中批量查询的上限。
const batchDrainTimeout = 30 * time.Second

// BatchOptions 批量查询中每条查询共享的参数。
type BatchOptions struct {
	K              int    `json:"k"`
	Provider       string `json:"llm_provider"`
	Model          string `json:"llm_model"`
	CharacterLimit int    `json:"response_character_limit"`
}

// BatchResult 批量查询中单条的结果。
// Err 在该条请求无效、请求上下文取消后未执行或执行中发生 panic 时非空。
type BatchResult struct {
	Outcome Outcome
	Err     error
}

// batchRunner 批量查询准入：最多 capacity 条同时执行，满时等待任一条结束。
type batchRunner struct {
	pool *pool.Pool
}

func newBatchRunner(capacity int) (*batchRunner, error) {
	p, err := pool.NewPool("rag-batch", pool.BatchConfig(capacity))
	if err != nil {
		return nil, err
	}
	return &batchRunner{pool: p}, nil
}

// release 停止接收新任务，并等待进行中的查询结束。
func (b *batchRunner) release(timeout time.Duration) error {
	err := b.pool.ReleaseTimeout(timeout)
	logger.Infow("batch pool released", "stats", b.pool.Stats(), "drained", err == nil)
	return err
}

// BatchQuery 以有限并发执行多条查询，结果顺序与输入一致。
// 单条查询的无效请求错误放在对应的 BatchResult.Err 中，不影响其他查询。
func (s *RAGService) BatchQuery(ctx context.Context, tenantID string, queries []string, opts BatchOptions) ([]BatchResult, error) {
	if len(queries) == 0 {
		return []BatchResult{}, nil
	}
	if len(queries) > MaxBatchSize {
		return nil, errors.ErrRAGInvalidRequest.WithMessagef("batch size %d exceeds limit %d", len(queries), MaxBatchSize)
	}

	s.metrics.BatchStarted()
	results := make([]BatchResult, len(queries))

	var wg sync.WaitGroup
	for i, q := range queries {
		i, q := i, q
		req := QueryRequest{
			TenantID:       tenantID,
			Query:          q,
			K:              opts.K,
			Provider:       opts.Provider,
			Model:          opts.Model,
			CharacterLimit: opts.CharacterLimit,
		}

		wg.Add(1)
		err := s.batch.pool.SubmitWithContext(ctx, func() {
			defer wg.Done()
			s.metrics.BatchQueryStarted()
			defer s.metrics.BatchQueryDone()
			defer func() {
				if r := recover(); r != nil {
					logger.Errorw("batch query panicked", "tenant_id", tenantID, "index", i, "panic", fmt.Sprint(r))
					results[i] = BatchResult{Err: errors.ErrInternal.WithMessagef("batch query %d panicked", i)}
				}
			}()

			out, err := s.Query(ctx, req)
			results[i] = BatchResult{Outcome: out, Err: err}
		}, func(err error) {
			defer wg.Done()
			results[i] = BatchResult{Err: errors.ErrRAGQueryCancelled.WithCause(err)}
		})
		if err != nil {
			wg.Done()
			logger.Warnw("batch query admission failed", "tenant_id", tenantID, "index", i, "error", err.Error())
			if ctx.Err() != nil {
				err = errors.ErrRAGQueryCancelled.WithCause(err)
			}
			results[i] = BatchResult{Err: err}
		}
	}
	wg.Wait()

	return results, nil
}

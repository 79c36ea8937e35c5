package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Job 一次文件分析作业
type Job struct {
	ID       string
	Path     string // APK 文件路径
	Force    bool   // 跳过哈希去重强制重新分析
	resultCh chan error
}

// Handler 作业处理函数，由装配方注入
type Handler func(ctx context.Context, job *Job) error

// Pool Worker 池
type Pool struct {
	workers int
	jobChan chan *Job
	handler Handler
	logger  *logrus.Logger
	active  atomic.Int32
	wg      sync.WaitGroup
}

// NewPool 创建 Worker 池
func NewPool(workers, queueSize int, handler Handler, logger *logrus.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Pool{
		workers: workers,
		jobChan: make(chan *Job, queueSize),
		handler: handler,
		logger:  logger,
	}
}

// Start 启动 Worker 池
func (p *Pool) Start(ctx context.Context) {
	p.logger.WithField("workers", p.workers).Info("Starting worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// worker Worker 协程
func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.WithField("worker_id", id).Info("Worker started")

	for {
		select {
		case <-ctx.Done():
			p.logger.WithField("worker_id", id).Info("Worker shutting down")
			return

		case job, ok := <-p.jobChan:
			if !ok {
				p.logger.WithField("worker_id", id).Info("Job channel closed, worker exiting")
				return
			}

			p.logger.WithFields(logrus.Fields{
				"worker_id": id,
				"job_id":    job.ID,
				"path":      job.Path,
			}).Info("Processing job")

			p.active.Add(1)
			err := p.runJob(ctx, job)
			p.active.Add(-1)

			if err != nil {
				p.logger.WithError(err).WithFields(logrus.Fields{
					"worker_id": id,
					"job_id":    job.ID,
				}).Error("Job execution failed")
			} else {
				p.logger.WithFields(logrus.Fields{
					"worker_id": id,
					"job_id":    job.ID,
				}).Info("Job completed successfully")
			}

			// 如果有结果通道，发送结果
			if job.resultCh != nil {
				job.resultCh <- err
				close(job.resultCh)
			}
		}
	}
}

// runJob 执行单个作业，handler panic 转为作业错误，不击穿 worker
func (p *Pool) runJob(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return p.handler(ctx, job)
}

// Submit 提交作业（异步，不等待结果）
func (p *Pool) Submit(job *Job) error {
	select {
	case p.jobChan <- job:
		p.logger.WithField("job_id", job.ID).Debug("Job submitted to pool")
		return nil
	default:
		return fmt.Errorf("job queue is full")
	}
}

// SubmitAndWait 提交作业并等待完成
func (p *Pool) SubmitAndWait(ctx context.Context, job *Job) error {
	job.resultCh = make(chan error, 1)

	select {
	case p.jobChan <- job:
		p.logger.WithField("job_id", job.ID).Debug("Job submitted to pool (sync)")
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-job.resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop 停止 Worker 池
func (p *Pool) Stop() {
	p.logger.Info("Stopping worker pool")
	close(p.jobChan)
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

// Size Worker 数量
func (p *Pool) Size() int {
	return p.workers
}

// Active 正在执行作业的 Worker 数
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// QueueSize 队列中等待的作业数
func (p *Pool) QueueSize() int {
	return len(p.jobChan)
}

package scheduler

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/newsfuse/newsfuse/internal/aggregator"
	"github.com/newsfuse/newsfuse/internal/config"
	"github.com/newsfuse/newsfuse/internal/processor"
	"github.com/newsfuse/newsfuse/internal/storage"
)

// Scheduler 周期性地对每个配置话题执行一轮聚合并入库
type Scheduler struct {
	cron      *cron.Cron
	agg       *aggregator.Aggregator
	processor *processor.Processor
	store     *storage.Store
	content   config.ContentConfig
}

func New(spec string, agg *aggregator.Aggregator, p *processor.Processor, store *storage.Store, content config.ContentConfig) (*Scheduler, error) {
	c := cron.New()

	s := &Scheduler{
		cron:      c,
		agg:       agg,
		processor: p,
		store:     store,
		content:   content,
	}

	if _, err := c.AddFunc(spec, s.runOnce); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	// 延迟执行首轮聚合，避免与服务启动期的健康检查和首批请求争抢资源
	const startupDelay = 15 * time.Second
	time.AfterFunc(startupDelay, func() {
		go s.runOnce()
	})
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// RunOnce 对外暴露的单次执行入口，方便手动触发
func (s *Scheduler) RunOnce() {
	s.runOnce()
}

// runOnce 逐个话题聚合。话题之间串行执行：源内部的并发由聚合器负责，
// 串行可以让限流器的令牌在话题之间自然摊开。
func (s *Scheduler) runOnce() {
	log.Println("start aggregation job...")

	for _, topic := range s.content.Topics {
		items, partial, err := s.agg.Aggregate(context.Background(), aggregator.Request{
			Query:            topic,
			PerProviderLimit: s.content.PerProviderLimit,
			OverallLimit:     s.content.OverallLimit,
			Timeout:          s.content.Timeout(),
		})
		if err != nil {
			log.Printf("aggregate topic %q error: %v", topic, err)
			continue
		}
		if partial {
			log.Printf("aggregate topic %q: partial result, some sources unavailable", topic)
		}
		if len(items) == 0 {
			log.Printf("aggregate topic %q got 0 items", topic)
			continue
		}

		processed := s.processor.Process(items)
		if len(processed) == 0 {
			continue
		}

		if err := s.store.SaveBatch(topic, processed); err != nil {
			log.Printf("save topic %q batch error: %v", topic, err)
			continue
		}

		if payload, err := json.Marshal(items); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			s.store.CacheBatch(ctx, topic, payload)
			cancel()
		}

		log.Printf("topic %q done, aggregated=%d saved=%d", topic, len(items), len(processed))
	}

	log.Println("aggregation job done (all topics)")
}

package main

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Pipeline wires watcher -> tail -> extractor -> admission -> dispatch.
type Pipeline struct {
	config    *ConfigStore
	session   *Session
	queue     *notificationQueue
	extractor *Extractor
	admitter  *Admitter
	dispatch  *DispatchEngine
	log       zerolog.Logger
}

func NewPipeline(config *ConfigStore, channels []Channel, metrics *pipelineMetrics, log zerolog.Logger) *Pipeline {
	session := NewSession()
	queue := &notificationQueue{}

	p := &Pipeline{
		config:    config,
		session:   session,
		queue:     queue,
		extractor: NewExtractor(session, config, metrics, log),
		admitter:  NewAdmitter(config, queue, metrics, log),
		dispatch:  NewDispatchEngine(queue, channels, session, config, metrics, log),
		log:       log,
	}
	p.extractor.Subscribe(NewEventLogSubscriber(config, log))
	p.extractor.Subscribe(p.admitter)
	return p
}

// Subscribe adds another consumer of extracted events.
func (p *Pipeline) Subscribe(sub LogSubscriber) {
	p.extractor.Subscribe(sub)
}

// Run blocks until ctx is cancelled or the dispatch loop fails. On a
// dispatch failure the watcher is stopped and the error returned.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.admitter.AdmitStartup()

	watcher := NewDirectoryWatcher(p.config, func(path string, coldStart bool) TailOptions {
		return p.tailOptions(ctx, coldStart)
	}, p.log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		watcher.Run(ctx)
	}()

	err := p.dispatch.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

func (p *Pipeline) tailOptions(ctx context.Context, coldStart bool) TailOptions {
	lines := &lineAssembler{}
	opts := TailOptions{
		OnAppend: func(text string) {
			p.extractor.ProcessLines(lines.Feed(text))
		},
	}
	if coldStart {
		opts.OnInitialScan = func(path string, offset int64) {
			p.log.Info().Str("path", path).Int64("offset", offset).Msg("rewinding log to collect session metadata")
			if err := p.extractor.ColdScan(ctx, path, offset, p.config.Get().General.ColdScanMaxBytes); err != nil {
				p.log.Warn().Err(err).Str("path", path).Msg("cold scan failed")
			}
		}
	}
	return opts
}

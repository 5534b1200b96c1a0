package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/danielpatrickdp/deepresearch/internal/codec"
	"github.com/danielpatrickdp/deepresearch/internal/config"
	"github.com/danielpatrickdp/deepresearch/internal/corpus"
	"github.com/danielpatrickdp/deepresearch/internal/metrics"
	"github.com/danielpatrickdp/deepresearch/internal/orchestrator"
	"github.com/danielpatrickdp/deepresearch/internal/research"
	"github.com/danielpatrickdp/deepresearch/internal/store"
	"github.com/danielpatrickdp/deepresearch/internal/websearch"
)

// engine is a fully wired orchestrator plus everything that must be closed
// when the command exits.
type engine struct {
	orch    *orchestrator.Orchestrator
	store   *store.Store
	metrics *metrics.Recorder
	closers []io.Closer
}

func (e *engine) Close() error {
	var first error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// buildEngine opens the store, builds the configured evidence source and
// wires the orchestrator with run logging and metrics.
func buildEngine(c config.Config) (*engine, error) {
	e := &engine{metrics: metrics.New()}

	st, err := store.NewStore(c.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	e.store = st
	e.closers = append(e.closers, st)

	src, closer, err := buildSource(c, st)
	if err != nil {
		e.Close()
		return nil, err
	}
	if closer != nil {
		e.closers = append(e.closers, closer)
	}

	e.orch = orchestrator.New(src, c.Orchestrator(),
		orchestrator.WithMetrics(e.metrics),
		orchestrator.WithRunLog(st),
	)
	return e, nil
}

// buildSource returns the EvidenceSource named by source.kind.
func buildSource(c config.Config, st *store.Store) (research.EvidenceSource, io.Closer, error) {
	switch strings.ToLower(c.Source.Kind) {
	case "websearch":
		src, err := websearch.NewSource(c.WebSearchConfig())
		if err != nil {
			return nil, nil, err
		}
		return src, nil, nil
	case "grpc":
		client, err := codec.NewClient(c.GRPC.Addr)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	case "corpus":
		return corpus.NewSource(st, corpus.Config{}), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}
}

package sidecar

import (
	"context"
	"errors"
	"fmt"
	"time"

	fmerrors "fastmd/internal/errors"
	"fastmd/internal/observability"
	"fastmd/internal/parallel"
	"fastmd/internal/rpc"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type pingResult struct {
	Pong bool `json:"pong"`
}

func (d *Dispatcher) handlePing(context.Context, *rpc.Message) (any, error) {
	return pingResult{Pong: true}, nil
}

type transformOptions struct {
	Mode      string                 `json:"mode"`
	Sourcemap bool                   `json:"sourcemap"`
	Framework string                 `json:"framework"`
	Engine    string                 `json:"engine"`
	Sanitize  bool                   `json:"sanitize"`
	Rules     []parallel.ReplaceRule `json:"rules"`
}

type transformParams struct {
	File    *string           `json:"file"`
	Content *string           `json:"content"`
	Options *transformOptions `json:"options"`
}

// task validates p and builds the task it describes.
func (d *Dispatcher) task(id string, p transformParams) (parallel.Task, error) {
	if p.File == nil {
		return parallel.Task{}, invalidParams("missing field `file`")
	}
	if p.Content == nil {
		return parallel.Task{}, invalidParams("missing field `content`")
	}

	task := parallel.NewTask(id, *p.File, *p.Content)
	if p.Options == nil {
		return task, nil
	}
	if _, err := d.registry.Lookup(p.Options.Engine); err != nil {
		return parallel.Task{}, invalidParams(err.Error())
	}
	return task.WithOptions(parallel.TaskOptions{
		Mode:      p.Options.Mode,
		Sourcemap: p.Options.Sourcemap,
		Framework: p.Options.Framework,
		Engine:    p.Options.Engine,
		Sanitize:  p.Options.Sanitize,
		Rules:     p.Options.Rules,
	}), nil
}

func (d *Dispatcher) handleTransform(ctx context.Context, msg *rpc.Message) (any, error) {
	var params transformParams
	if err := msg.DecodeParams(&params); err != nil {
		return nil, err
	}
	task, err := d.task(uuid.NewString(), params)
	if err != nil {
		return nil, err
	}

	key := CacheKey(task)
	if cached, ok := d.cache.Get(key); ok {
		d.logger.Debug("Cache hit for %s", task.File())
		return cached, nil
	}

	ctx, span := d.tracer.StartSpan(ctx, observability.SpanPoolProcess,
		attribute.String(observability.AttrTaskID, task.ID()),
		attribute.String(observability.AttrFile, task.File()),
		attribute.String(observability.AttrEngine, task.Options().Engine),
	)
	result, err := d.pool.Process(ctx, task)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, poolError(err)
	}

	if failure, ok := result.Failure(); ok {
		return nil, fmerrors.NewProtocolError(rpc.TransformError, "Transform failed: "+failure.Error, map[string]any{
			"recoverable": failure.Recoverable,
		})
	}

	success, _ := result.Success()
	d.cache.Add(key, success.Output)
	return success.Output, nil
}

type batchParams struct {
	ID    string             `json:"id"`
	Files *[]transformParams `json:"files"`
}

type batchItem struct {
	ID           string         `json:"id"`
	File         string         `json:"file"`
	Code         string         `json:"code,omitempty"`
	Map          map[string]any `json:"map,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Error        string         `json:"error,omitempty"`
	Recoverable  *bool          `json:"recoverable,omitempty"`
	Cached       bool           `json:"cached,omitempty"`
}

type batchSummary struct {
	Total      int     `json:"total"`
	Succeeded  int     `json:"succeeded"`
	Failed     int     `json:"failed"`
	Cached     int     `json:"cached"`
	DurationMs float64 `json:"durationMs"`
}

type batchResult struct {
	ID      string       `json:"id"`
	Results []batchItem  `json:"results"`
	Stats   batchSummary `json:"stats"`
}

// handleTransformBatch renders many files through the pool, in rounds of at
// most roundSize tasks. Results are reported in input order and per-file
// failures are inline. Cached files skip the pool.
func (d *Dispatcher) handleTransformBatch(ctx context.Context, msg *rpc.Message) (any, error) {
	var params batchParams
	if err := msg.DecodeParams(&params); err != nil {
		return nil, err
	}
	if params.Files == nil {
		return nil, invalidParams("missing field `files`")
	}
	files := *params.Files

	began := time.Now()
	items := make([]batchItem, len(files))
	index := make(map[string]int, len(files))
	keys := make(map[string]string, len(files))
	var pending []parallel.Task
	summary := batchSummary{Total: len(files)}

	for i, file := range files {
		task, err := d.task(fmt.Sprintf("file-%d", i), file)
		if err != nil {
			protocolErr, _ := fmerrors.AsProtocolError(err)
			return nil, invalidParams(fmt.Sprintf("files[%d]: %s", i, protocolErr.Data))
		}
		items[i] = batchItem{ID: task.ID(), File: task.File()}

		key := CacheKey(task)
		if cached, ok := d.cache.Get(key); ok {
			items[i].fill(cached)
			items[i].Cached = true
			summary.Cached++
			continue
		}
		index[task.ID()] = i
		keys[task.ID()] = key
		pending = append(pending, task)
	}

	batchID := params.ID
	if batchID == "" {
		batchID = uuid.NewString()
	}
	round := d.roundSize
	if round <= 0 || round > len(pending) {
		round = len(pending)
	}
	for start := 0; start < len(pending); start += round {
		chunk := pending[start:min(start+round, len(pending))]
		id := batchID
		if round < len(pending) {
			id = fmt.Sprintf("%s/%d", batchID, start/round)
		}
		if err := d.runBatch(ctx, id, chunk, items, index, keys); err != nil {
			return nil, err
		}
	}

	for _, item := range items {
		if item.Error != "" {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
	}
	summary.DurationMs = float64(time.Since(began)) / float64(time.Millisecond)

	return batchResult{ID: batchID, Results: items, Stats: summary}, nil
}

// runBatch submits one round of a transformBatch request and records each
// result at its input position.
func (d *Dispatcher) runBatch(ctx context.Context, id string, tasks []parallel.Task, items []batchItem, index map[string]int, keys map[string]string) error {
	batch, err := parallel.NewBatch(id, tasks)
	if err != nil {
		return invalidParams(err.Error())
	}

	ctx, span := d.tracer.StartSpan(ctx, observability.SpanPoolBatch, observability.BatchAttrs(batch.ID(), batch.Len())...)
	results, err := d.pool.ProcessBatch(ctx, batch)
	observability.EndSpan(span, err)
	if err != nil {
		d.logger.Error("Batch %s delivered %d/%d results: %v", batch.ID(), len(results), batch.Len(), err)
		return poolError(err)
	}

	for _, result := range results {
		i := index[result.ID()]
		if failure, ok := result.Failure(); ok {
			recoverable := failure.Recoverable
			items[i].Error = failure.Error
			items[i].Recoverable = &recoverable
			continue
		}
		success, _ := result.Success()
		items[i].fill(success.Output)
		d.cache.Add(keys[result.ID()], success.Output)
	}
	return nil
}

func (item *batchItem) fill(out parallel.Rendered) {
	item.Code = out.Code
	item.Map = out.Map
	item.Metadata = out.Metadata
	item.Dependencies = out.Dependencies
}

type normalizeParams struct {
	Content     *string `json:"content"`
	RemoveBOM   bool    `json:"remove_bom"`
	NormalizeLF *bool   `json:"normalize_lf"`
}

type normalizeResult struct {
	Content string `json:"content"`
	Changed bool   `json:"changed"`
}

func (d *Dispatcher) handleNormalize(_ context.Context, msg *rpc.Message) (any, error) {
	var params normalizeParams
	if err := msg.DecodeParams(&params); err != nil {
		return nil, err
	}
	if params.Content == nil {
		return nil, invalidParams("missing field `content`")
	}

	normalizeLF := true
	if params.NormalizeLF != nil {
		normalizeLF = *params.NormalizeLF
	}
	content, changed := Normalize(*params.Content, params.RemoveBOM, normalizeLF)
	return normalizeResult{Content: content, Changed: changed}, nil
}

type computeDigestParams struct {
	Files *[]FileRecord `json:"files"`
}

type digestResult struct {
	Digest string `json:"digest"`
	Files  int    `json:"files,omitempty"`
}

func (d *Dispatcher) handleComputeDigest(_ context.Context, msg *rpc.Message) (any, error) {
	var params computeDigestParams
	if err := msg.DecodeParams(&params); err != nil {
		return nil, err
	}
	if params.Files == nil {
		return nil, invalidParams("missing field `files`")
	}
	return digestResult{Digest: ComputeDigest(*params.Files)}, nil
}

type depsDigestParams struct {
	Paths *[]string `json:"paths"`
}

// handleDepsDigest stats the given paths and digests the records, so the
// host does not have to collect sizes and mtimes itself.
func (d *Dispatcher) handleDepsDigest(ctx context.Context, msg *rpc.Message) (any, error) {
	var params depsDigestParams
	if err := msg.DecodeParams(&params); err != nil {
		return nil, err
	}
	if params.Paths == nil {
		return nil, invalidParams("missing field `paths`")
	}

	ctx, span := d.tracer.StartSpan(ctx, observability.SpanDigestCollect, attribute.Int(observability.AttrBatchSize, len(*params.Paths)))
	records, err := CollectFileRecords(ctx, *params.Paths, d.statConcurrency)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, fmerrors.NewProtocolError(rpc.IOError, "Failed to stat dependencies", err.Error())
	}
	return digestResult{Digest: ComputeDigest(records), Files: len(records)}, nil
}

func (d *Dispatcher) handleStats(context.Context, *rpc.Message) (any, error) {
	return d.pool.Stats(), nil
}

func invalidParams(detail string) error {
	return fmerrors.NewProtocolError(rpc.InvalidParams, "Invalid params: "+detail, detail)
}

// poolError maps pool submission and collection failures onto responses.
func poolError(err error) error {
	switch {
	case errors.Is(err, fmerrors.ErrQueueFull):
		return fmerrors.NewProtocolError(rpc.InternalError, "Task queue is full", map[string]any{"recoverable": true})
	case fmerrors.IsPoolFatal(err):
		return fmerrors.NewProtocolError(rpc.InternalError, "Worker pool unavailable", err.Error())
	default:
		return fmerrors.NewProtocolError(rpc.InternalError, "Internal error", err.Error())
	}
}

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/processing"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/session"
)

// sessionKeyFor returns the Load Session identity for req. With
// deduplication disabled, every task mints a fresh identity so it never
// joins another task's session.
func (p *Pipeline) sessionKeyFor(req model.Request, taskID int64) string {
	if !p.opts.DeduplicationEnabled {
		return fmt.Sprintf("task-%d", taskID)
	}
	return req.Key()
}

func (p *Pipeline) handleSubmit(cmd cmdSubmit) {
	ts := &taskState{
		task:       cmd.task,
		req:        cmd.req,
		onProgress: cmd.onProgress,
		onComplete: cmd.onComplete,
		metrics:    model.TaskMetrics{StartDate: time.Now()},
	}
	p.tasks[cmd.task.id] = ts

	key := p.sessionKeyFor(cmd.req, cmd.task.id)
	ts.sessionKey = key

	if cmd.req.MemoryCacheRead && p.deps.ImageCache != nil {
		if resp, ok := p.deps.ImageCache.Get(key); ok {
			ts.metrics.IsMemoryCacheHit = true
			p.finishTask(ts, resp, nil)
			return
		}
	}

	if sess, ok := p.sessions.Get(key); ok {
		ts.metrics.WasSubscribedToExistingSession = true
		p.attachSubscriber(sess, ts)
		return
	}

	sess := session.New(key, cmd.req)
	sink := p.deps.Metrics
	sess.Machine.OnTransition(func(from, to session.State, event session.Event) {
		sink.ObserveTransition(string(from), string(to), string(event))
	})
	p.sessions.Put(sess)
	p.attachSubscriber(sess, ts)
	p.startSession(sess)
}

func (p *Pipeline) attachSubscriber(sess *session.Session, ts *taskState) {
	sub := &session.Subscriber{
		TaskID:   ts.task.id,
		Priority: ts.req.Priority,
		Request:  ts.req,
		OnChunk: func(container model.ImageContainer) {
			p.dispatchToTask(ts, sess, container)
		},
		OnComplete: func(resp model.Response, err error) {
			p.finishTask(ts, resp, err)
		},
	}
	sess.AddSubscriber(sub)
}

func (p *Pipeline) startSession(sess *session.Session) {
	if p.opts.RateLimiterEnabled && p.deps.Limiter != nil {
		_, _ = sess.Machine.Fire(context.Background(), session.EventEnterAdmission)
		key := sess.Key
		p.deps.Limiter.Execute(sess.Cancel.Token(), func() {
			p.post(cmdAdmitted{sessionKey: key})
		})
		return
	}
	_, _ = sess.Machine.Fire(context.Background(), session.EventSkipAdmission)
	p.startDiskProbe(sess)
}

func (p *Pipeline) handleAdmitted(cmd cmdAdmitted) {
	sess, ok := p.sessions.Get(cmd.sessionKey)
	if !ok {
		return
	}
	_, _ = sess.Machine.Fire(context.Background(), session.EventAdmitted)
	p.startDiskProbe(sess)
}

func (p *Pipeline) startDiskProbe(sess *session.Session) {
	sess.Metrics.DiskProbeStart = time.Now()
	ctx, span := p.tracer.Start(context.Background(), "imaging.disk_probe")
	if p.deps.DataCache == nil {
		p.post(cmdDiskProbeResult{sessionKey: sess.Key, found: false, span: span})
		return
	}
	key := sess.Key
	handle := p.deps.DataCache.Lookup(ctx, sess.Request.URL, func(data []byte, found bool) {
		p.post(cmdDiskProbeResult{sessionKey: key, data: data, found: found, span: span})
	})
	sess.Cancel.Token().Register(func() { handle.Cancel() })
}

func (p *Pipeline) handleDiskProbeResult(cmd cmdDiskProbeResult) {
	cmd.span.End()
	sess, ok := p.sessions.Get(cmd.sessionKey)
	if !ok {
		return
	}
	sess.Metrics.DiskProbeEnd = time.Now()

	if cmd.found {
		_, _ = sess.Machine.Fire(context.Background(), session.EventDiskHit)
		p.startDecode(sess, cmd.data, true)
		return
	}
	_, _ = sess.Machine.Fire(context.Background(), session.EventDiskMiss)
	p.startDownload(sess)
}

func (p *Pipeline) startDownload(sess *session.Session) {
	sess.Metrics.NetworkStart = time.Now()

	var resume *model.ResumableState
	if p.opts.ResumableDataEnabled && p.deps.ResumableStore != nil {
		if st, ok, err := p.deps.ResumableStore.Get(context.Background(), sess.Request.URL); err == nil && ok {
			resume = &st
			sess.ResumableSnapshot = &st
		}
	}

	ctx, span := p.tracer.Start(context.Background(), "imaging.network_fetch")
	key := sess.Key
	item := p.netQueue.Enqueue(sess.Cancel.Token(), sess.Priority(), func(finish func()) {
		handle := p.deps.DataLoader.LoadData(ctx, sess.Request, resume,
			func(chunk []byte, resp model.TransportResponse) {
				p.post(cmdNetworkChunk{sessionKey: key, chunk: chunk, resp: resp})
			},
			func(err error) {
				finish()
				p.post(cmdNetworkComplete{sessionKey: key, err: err, span: span})
			},
		)
		sess.Cancel.Token().Register(func() { handle.Cancel() })
	}, func() {})
	sess.CurrentItem = item
}

func (p *Pipeline) handleNetworkChunk(cmd cmdNetworkChunk) {
	sess, ok := p.sessions.Get(cmd.sessionKey)
	if !ok {
		return
	}

	resp := cmd.resp
	if sess.ResumableSnapshot != nil {
		if resp.StatusCode == model.PartialContentStatus {
			sess.Buffer = append(append([]byte(nil), sess.ResumableSnapshot.Accumulated...), sess.Buffer...)
			sess.Metrics.WasResumed = true
			sess.Metrics.ResumedDataCount = int64(len(sess.ResumableSnapshot.Accumulated))
			sess.Metrics.ServerConfirmedResume = true
		}
		sess.ResumableSnapshot = nil
	}

	sess.Buffer = append(sess.Buffer, cmd.chunk...)
	sess.TransportResponse = &resp
	sess.Metrics.DownloadedDataCount += int64(len(cmd.chunk))

	completed := int64(len(sess.Buffer))
	total := resp.ExpectedLength
	for _, sub := range sess.Subscribers() {
		if ts, ok := p.tasks[sub.TaskID]; ok {
			ts.task.setProgress(completed, total)
		}
	}

	if p.opts.ProgressiveDecodingEnabled && !sess.DecodeInFlight && int64(len(sess.Buffer)) < total {
		snapshot := append([]byte(nil), sess.Buffer...)
		p.startDecode(sess, snapshot, false)
	}
}

func (p *Pipeline) handleNetworkComplete(cmd cmdNetworkComplete) {
	if cmd.err != nil {
		cmd.span.RecordError(cmd.err)
	}
	cmd.span.End()
	sess, ok := p.sessions.Get(cmd.sessionKey)
	if !ok {
		return
	}
	sess.Metrics.NetworkEnd = time.Now()
	sess.CurrentItem = nil

	if cmd.err != nil {
		if len(sess.Buffer) > 0 && sess.TransportResponse != nil && sess.TransportResponse.Validator != "" {
			p.persistResumable(sess)
		}
		p.failSession(sess, model.NewDataLoadingFailed(cmd.err))
		return
	}

	_, _ = sess.Machine.Fire(context.Background(), session.EventDownloaded)
	data := append([]byte(nil), sess.Buffer...)
	p.startDecode(sess, data, true)
}

func (p *Pipeline) persistResumable(sess *session.Session) {
	if !p.opts.ResumableDataEnabled || p.deps.ResumableStore == nil {
		return
	}
	state := model.ResumableState{
		Validator:   sess.TransportResponse.Validator,
		Accumulated: append([]byte(nil), sess.Buffer...),
		UpdatedAt:   time.Now(),
	}
	_ = p.deps.ResumableStore.Put(context.Background(), sess.Request.URL, state)
}

// startDecode admits a decode operation. isFinal distinguishes the
// session-wide final decode from a progressive partial; at most one
// partial decode runs at a time (the final decode bypasses this guard).
func (p *Pipeline) startDecode(sess *session.Session, data []byte, isFinal bool) {
	if !isFinal && sess.DecodeInFlight {
		return
	}
	sess.DecodeInFlight = true
	if sess.Metrics.DecodeStart.IsZero() {
		sess.Metrics.DecodeStart = time.Now()
	}

	if sess.Decoder == nil && len(data) > 0 {
		dec, err := p.deps.DecoderFactory(sess.Request, sess.TransportResponse, data)
		if err != nil {
			p.failSession(sess, model.NewDecodingFailed(err))
			return
		}
		sess.Decoder = dec
	}
	if sess.Decoder == nil {
		if isFinal {
			// The full payload is here and still no decoder recognises it.
			p.failSession(sess, model.NewDecodingFailed(fmt.Errorf("no decoder for %d bytes", len(data))))
			return
		}
		// Not enough sample data yet to construct a decoder; wait for the
		// next chunk (final path always retries with the full buffer).
		sess.DecodeInFlight = false
		return
	}

	ctx, span := p.tracer.Start(context.Background(), "imaging.decode")
	key := sess.Key
	decoder := sess.Decoder
	item := p.decodeQueue.Enqueue(sess.Cancel.Token(), sess.Priority(), func(finish func()) {
		go func() {
			defer finish()
			image, err := decoder.Decode(ctx, data, isFinal)
			scans := decoder.NumberOfScans()
			p.post(cmdDecodeResult{sessionKey: key, isFinal: isFinal, image: image, err: err, scanNumber: scans, hasScan: scans > 0, span: span})
		}()
	}, func() {})
	if isFinal {
		// A partial decode runs while the network item is still the
		// stage's handle; only the final decode becomes the current item.
		sess.CurrentItem = item
	}
}

func (p *Pipeline) handleDecodeResult(cmd cmdDecodeResult) {
	if cmd.err != nil {
		cmd.span.RecordError(cmd.err)
	}
	cmd.span.End()
	sess, ok := p.sessions.Get(cmd.sessionKey)
	if !ok {
		return
	}
	sess.DecodeInFlight = false
	if cmd.isFinal {
		sess.CurrentItem = nil
	}

	if cmd.err != nil || cmd.image == nil {
		if cmd.isFinal {
			p.failSession(sess, model.NewDecodingFailed(cmd.err))
		}
		// A failed partial decode is simply dropped; the session keeps
		// waiting for more data or the final decode.
		return
	}

	container := model.ImageContainer{
		Image:      cmd.image,
		IsFinal:    cmd.isFinal,
		ScanNumber: cmd.scanNumber,
		HasScan:    cmd.hasScan,
	}
	sess.LastContainer = &container

	if cmd.isFinal {
		sess.Metrics.DecodeEnd = time.Now()
		_, _ = sess.Machine.Fire(context.Background(), session.EventDecoded)
		if p.deps.DataCache != nil && len(sess.Buffer) > 0 {
			p.deps.DataCache.Store(sess.Request.URL, append([]byte(nil), sess.Buffer...))
		}
	}

	if cmd.isFinal {
		_, _ = sess.Machine.Fire(context.Background(), session.EventDelivered)
	}

	for _, sub := range sess.Subscribers() {
		sub.OnChunk(container)
	}
}

// dispatchToTask routes a decoded container through processing and on to
// the task's progress/completion callbacks. Per-task backpressure: if a
// non-final image from this task's session is already outstanding in
// processing, further non-final images are dropped rather than queued.
// Final images are always dispatched.
func (p *Pipeline) dispatchToTask(ts *taskState, sess *session.Session, container model.ImageContainer) {
	if container.IsFinal && ts.metrics.ProcessStart.IsZero() {
		ts.metrics.ProcessStart = time.Now()
	}
	if !container.IsFinal {
		if ts.processingBusy {
			return
		}
		ts.processingBusy = true
	}

	cfg := processing.Config{AnimatedImageDataEnabled: p.opts.AnimatedImageDataEnabled, Tracer: p.tracer}

	processing.Dispatch(sess.Processing, p.procQueue, ts.task.id, ts.req, container, cfg, func(image model.Image, err error, isFinal bool) {
		p.post(cmdProcessed{ts: ts, sess: sess, image: image, err: err, isFinal: isFinal})
	})
}

func (p *Pipeline) handleProcessed(cmd cmdProcessed) {
	if !cmd.isFinal {
		cmd.ts.processingBusy = false
	}
	if cmd.err != nil {
		// Processing failures are per-task: only this task's subscription
		// ends, others on the same Load/Processing Session are unaffected.
		p.finishTask(cmd.ts, model.Response{}, cmd.err)
		return
	}
	if !cmd.isFinal {
		if cmd.ts.onProgress != nil {
			p.deliver(func() {
				cmd.ts.onProgress(model.ImageContainer{Image: cmd.image, IsFinal: false})
			})
		}
		return
	}
	cmd.ts.metrics.ProcessEnd = time.Now()
	resp := model.Response{Image: cmd.image, TransportResponse: cmd.sess.TransportResponse}
	if cmd.ts.req.MemoryCacheWrite && p.deps.ImageCache != nil {
		p.deps.ImageCache.Put(cmd.ts.sessionKey, resp)
	}
	p.finishTask(cmd.ts, resp, nil)
}

func (p *Pipeline) finishTask(ts *taskState, resp model.Response, err error) {
	if ts.delivered {
		return
	}
	ts.delivered = true
	ts.metrics.EndDate = time.Now()
	p.deps.Metrics.ObserveTask(ts.metrics)
	delete(p.tasks, ts.task.id)

	if sess, ok := p.sessions.Get(ts.sessionKey); ok {
		if emptied := sess.RemoveSubscriber(ts.task.id); emptied {
			p.teardownSession(sess, false)
		}
	}

	if ts.onComplete != nil {
		onComplete := ts.onComplete
		p.deliver(func() { onComplete(resp, err) })
	}
}

func (p *Pipeline) failSession(sess *session.Session, err error) {
	_, _ = sess.Machine.Fire(context.Background(), session.EventFail)
	p.sessions.Delete(sess.Key)
	for _, sub := range sess.Subscribers() {
		if ts, ok := p.tasks[sub.TaskID]; ok {
			p.finishTask(ts, model.Response{}, err)
		}
	}
	sess.Metrics.EndDate = time.Now()
	p.deps.Metrics.ObserveSession(sess.Metrics)
}

// teardownSession removes sess from the table and records its metrics.
// cancelled distinguishes an explicit Task.Cancel()-driven teardown (which
// also fires the session's cancellation source and persists any resumable
// buffer) from the ordinary path where the last subscriber simply finished.
func (p *Pipeline) teardownSession(sess *session.Session, cancelled bool) {
	if _, ok := p.sessions.Get(sess.Key); !ok {
		return
	}
	if cancelled {
		sess.Metrics.WasCancelled = true
		if len(sess.Buffer) > 0 && sess.TransportResponse != nil && sess.TransportResponse.Validator != "" {
			p.persistResumable(sess)
		}
		_, _ = sess.Machine.Fire(context.Background(), session.EventCancel)
		sess.Cancel.Cancel()
	}
	sess.Metrics.EndDate = time.Now()
	p.deps.Metrics.ObserveSession(sess.Metrics)
	p.sessions.Delete(sess.Key)
}

func (p *Pipeline) handleCancelTask(cmd cmdCancelTask) {
	ts, ok := p.tasks[cmd.taskID]
	if !ok {
		return
	}
	ts.metrics.WasCancelled = true
	ts.delivered = true // suppress any in-flight completion from still firing
	delete(p.tasks, cmd.taskID)
	p.deps.Metrics.ObserveTask(ts.metrics)

	if sess, ok := p.sessions.Get(ts.sessionKey); ok {
		if emptied := sess.RemoveSubscriber(cmd.taskID); emptied {
			p.teardownSession(sess, true)
		}
	}
}

func (p *Pipeline) handleSetPriority(cmd cmdSetPriority) {
	ts, ok := p.tasks[cmd.taskID]
	if !ok {
		return
	}
	ts.req.Priority = cmd.priority

	sess, ok := p.sessions.Get(ts.sessionKey)
	if !ok {
		return
	}
	sess.SetSubscriberPriority(cmd.taskID, cmd.priority)
	if sess.CurrentItem != nil {
		if sess.Machine.State() == session.StateDownloading {
			p.netQueue.Reprioritize(sess.CurrentItem, sess.Priority())
		} else if sess.Machine.State() == session.StateDecoding {
			p.decodeQueue.Reprioritize(sess.CurrentItem, sess.Priority())
		}
	}
}

// Package model defines the value types and collaborator interfaces shared
// across the image loading pipeline: requests, tasks, image containers, and
// the external traits (DataLoader, DataCache, ImageCache, DecoderFactory,
// Processor) the pipeline dispatches work to.
package model

import (
	"context"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Priority is an ordered enum; higher values win when a session or
// processing session recomputes its effective priority from subscribers.
type Priority int

const (
	PriorityVeryLow Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityVeryHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityVeryLow:
		return "very_low"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityVeryHigh:
		return "very_high"
	default:
		return "unknown"
	}
}

// Image is an opaque decoded image payload. The pipeline never inspects its
// contents; codecs and processors are the only collaborators that produce or
// consume one.
type Image any

// Processor transforms a decoded image container into a derived image. Two
// processors are considered the same processing session target when their
// Identity() values compare equal.
type Processor interface {
	Identity() string
	Process(ctx context.Context, container ImageContainer, req Request) (Image, error)
}

// Request describes a single logical image fetch. LoadingKey derives the
// fingerprint used to deduplicate concurrent requests for the same bytes;
// it must exclude the Processor (processing is keyed independently, per
// Load Session).
type Request struct {
	URL               string
	LoadingKey        func(Request) string
	Processor         Processor
	Priority          Priority
	MemoryCacheRead   bool
	MemoryCacheWrite  bool
	ProcessorIdentity string
}

// Key returns the request's loading-key fingerprint, used to find-or-create
// a Load Session. Callers with deduplication disabled should not call this;
// they mint a fresh identity instead (see the pipeline's sessionKeyFor). The
// default fingerprint is an xxhash of the URL rather than the URL itself, so
// the session table's keys have a fixed, short size regardless of how long
// the source URL is.
func (r Request) Key() string {
	if r.LoadingKey != nil {
		return r.LoadingKey(r)
	}
	return strconv.FormatUint(xxhash.Sum64String(r.URL), 16)
}

// TransportResponse carries the subset of an HTTP-like response the
// pipeline reasons about: total length, resumability, and a validator for
// conditional range requests.
type TransportResponse struct {
	StatusCode     int
	ExpectedLength int64
	Validator      string
	Resumed        bool
}

// PartialContentStatus is the status code DataLoader implementations use to
// signal that a range request was honored.
const PartialContentStatus = 206

// ImageContainer is what a decode or process step hands back: an image, a
// flag for whether this is the final (vs. progressive partial) result, and
// — for partials only — a monotonic scan number.
type ImageContainer struct {
	Image       Image
	IsFinal     bool
	ScanNumber  int
	HasScan     bool
	IsAnimated  bool
}

// Response is delivered to completion handlers.
type Response struct {
	Image              Image
	TransportResponse  *TransportResponse
}

// ResumableState is a snapshot of a partially downloaded resource, keyed by
// request URL in the resumable store.
type ResumableState struct {
	Validator        string
	Accumulated      []byte
	ServerConfirmed  bool
	UpdatedAt        time.Time
}

// Decoder incrementally or finally decodes bytes into an image container.
// NumberOfScans is optional; decoders that don't track progressive scans
// return 0 and HasScan=false on their containers.
type Decoder interface {
	Decode(ctx context.Context, data []byte, isFinal bool) (Image, error)
	NumberOfScans() int
}

// DecoderFactory constructs a Decoder once enough sample data is available.
// Returning (nil, nil) means "no decoder yet" (e.g. not enough bytes sniffed);
// returning a non-nil error is fatal for the session.
type DecoderFactory func(req Request, resp *TransportResponse, sample []byte) (Decoder, error)

// ChunkFunc is invoked by a DataLoader for each received chunk of bytes.
type ChunkFunc func(chunk []byte, resp TransportResponse)

// CompleteFunc is invoked exactly once by a DataLoader when the load ends.
type CompleteFunc func(err error)

// CancelHandle cancels an in-flight asynchronous operation.
type CancelHandle interface {
	Cancel()
}

// DataLoader performs the network fetch. onChunk may be called zero or more
// times before onComplete; both run off the pipeline's serial context.
type DataLoader interface {
	LoadData(ctx context.Context, req Request, resume *ResumableState, onChunk ChunkFunc, onComplete CompleteFunc) CancelHandle
}

// DataCache is the disk cache: key (URL string) to raw bytes, with an async
// lookup contract.
type DataCache interface {
	Lookup(ctx context.Context, key string, onResult func(data []byte, found bool)) CancelHandle
	Store(key string, data []byte)
}

// ImageCache is the memory cache: key (loading key) to decoded Response,
// synchronous per spec.
type ImageCache interface {
	Get(key string) (Response, bool)
	Put(key string, resp Response)
}

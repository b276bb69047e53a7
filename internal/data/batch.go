package data

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/born-ml/resnet/internal/tensor"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("data: source closed")

// Batch is a mini-batch of standardized images and their labels.
type Batch struct {
	Images *tensor.RawTensor // [B, H, W, C]
	Labels []int
}

// Size returns the number of examples in the batch.
func (b *Batch) Size() int {
	return len(b.Labels)
}

// Source yields mini-batches. Next returns io.EOF once the stream is
// exhausted and ErrClosed after Close.
type Source interface {
	Next(ctx context.Context) (*Batch, error)
	Close() error
}

// Shuffle pipeline defaults.
const (
	DefaultNumReaders      = 4
	DefaultShuffleCapacity = 50000
	DefaultMinAfterDequeue = 1000
)

// ShuffleConfig configures a ShuffleBatcher.
type ShuffleConfig struct {
	Path            string
	BatchSize       int
	NumReaders      int   // decode/augment workers; 0 means DefaultNumReaders
	Capacity        int   // pool bound; 0 means DefaultShuffleCapacity
	MinAfterDequeue int   // 0 means DefaultMinAfterDequeue; negative means none
	Epochs          int   // 0 cycles forever
	Seed            int64 // seeds the draw order and every worker
	Distort         bool
	Shape           ImageShape
	NumClasses      int
	MeanStd         MeanStd
}

func (c *ShuffleConfig) setDefaults() {
	if c.NumReaders == 0 {
		c.NumReaders = DefaultNumReaders
	}
	if c.Capacity == 0 {
		c.Capacity = DefaultShuffleCapacity
	}
	if c.MinAfterDequeue == 0 {
		c.MinAfterDequeue = DefaultMinAfterDequeue
	}
	if c.MinAfterDequeue < 0 {
		c.MinAfterDequeue = 0
	}
	if c.Shape == (ImageShape{}) {
		c.Shape = DefaultImageShape
	}
}

func (c *ShuffleConfig) validate() error {
	switch {
	case c.Path == "":
		return errors.New("data: shuffle: record path is required")
	case c.BatchSize <= 0:
		return fmt.Errorf("data: shuffle: batch size must be positive, got %d", c.BatchSize)
	case c.NumReaders < 0:
		return fmt.Errorf("data: shuffle: num readers must be positive, got %d", c.NumReaders)
	case c.Epochs < 0:
		return fmt.Errorf("data: shuffle: epochs must be non-negative, got %d", c.Epochs)
	case c.Capacity < c.BatchSize+c.MinAfterDequeue:
		return fmt.Errorf("data: shuffle: capacity %d is below batch size %d + min after dequeue %d",
			c.Capacity, c.BatchSize, c.MinAfterDequeue)
	}
	return c.MeanStd.Validate(c.Shape)
}

// ShuffleBatcher streams records through a pool of decode workers into a
// bounded shuffle buffer and draws batches from it uniformly at random.
//
// A single goroutine reads the record file (restarting it each epoch) and
// hands raw payloads to NumReaders decode workers. The buffer only releases a
// batch while at least MinAfterDequeue elements would remain, unless the
// stream has ended.
//
// Next and Close must not be called concurrently.
type ShuffleBatcher struct {
	cfg     ShuffleConfig
	file    *os.File
	cancel  context.CancelFunc
	decoded chan Record
	err     error // set before decoded is closed

	pool   []Record
	rng    *rand.Rand
	done   bool
	closed bool
}

// NewShuffleBatcher opens the record file and starts the pipeline.
func NewShuffleBatcher(cfg ShuffleConfig) (*ShuffleBatcher, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	//nolint:gosec // G304: path comes from the caller.
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("data: shuffle: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &ShuffleBatcher{
		cfg:     cfg,
		file:    f,
		cancel:  cancel,
		decoded: make(chan Record, cfg.BatchSize),
		pool:    make([]Record, 0, cfg.BatchSize+cfg.MinAfterDequeue),
		//nolint:gosec // Shuffling is not security-critical.
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}

	g, gctx := errgroup.WithContext(ctx)
	raw := make(chan []byte, cfg.NumReaders)
	g.Go(func() error {
		defer close(raw)
		return s.read(gctx, raw)
	})
	for i := 0; i < cfg.NumReaders; i++ {
		//nolint:gosec // Augmentation is not security-critical.
		rng := rand.New(rand.NewSource(cfg.Seed + int64(i) + 1))
		g.Go(func() error {
			return s.decode(gctx, raw, rng)
		})
	}
	go func() {
		s.err = g.Wait()
		close(s.decoded)
	}()
	return s, nil
}

// read streams record payloads for the configured number of epochs.
func (s *ShuffleBatcher) read(ctx context.Context, out chan<- []byte) error {
	for epoch := 0; s.cfg.Epochs == 0 || epoch < s.cfg.Epochs; epoch++ {
		if _, err := s.file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("data: shuffle: rewind %s: %w", s.cfg.Path, err)
		}
		reader := NewRecordReader(s.file)
		count := 0
		for {
			payload, err := reader.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return fmt.Errorf("%s: %w", s.cfg.Path, err)
			}
			select {
			case out <- payload:
			case <-ctx.Done():
				return ctx.Err()
			}
			count++
		}
		if count == 0 {
			return fmt.Errorf("%w: no records in %s", ErrBadRecord, s.cfg.Path)
		}
	}
	return nil
}

// decode turns payloads into standardized (and optionally distorted) records.
func (s *ShuffleBatcher) decode(ctx context.Context, in <-chan []byte, rng *rand.Rand) error {
	for payload := range in {
		rec, err := DecodeRecord(payload, s.cfg.Shape, s.cfg.NumClasses)
		if err != nil {
			return fmt.Errorf("%s: %w", s.cfg.Path, err)
		}
		rec.Image = Standardize(rec.Image, s.cfg.MeanStd)
		if s.cfg.Distort {
			rec.Image = Distort(rec.Image, rng)
		}
		select {
		case s.decoded <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Next draws BatchSize records uniformly from the shuffle pool.
func (s *ShuffleBatcher) Next(ctx context.Context) (*Batch, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	need := s.cfg.BatchSize + s.cfg.MinAfterDequeue
	for !s.done && len(s.pool) < need {
		select {
		case rec, ok := <-s.decoded:
			if !ok {
				s.done = true
				continue
			}
			s.pool = append(s.pool, rec)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.topUp()
	if s.done && s.err != nil {
		return nil, s.err
	}
	if len(s.pool) < s.cfg.BatchSize {
		return nil, io.EOF
	}

	records := make([]Record, s.cfg.BatchSize)
	for i := range records {
		j := s.rng.Intn(len(s.pool))
		last := len(s.pool) - 1
		records[i] = s.pool[j]
		s.pool[j] = s.pool[last]
		s.pool[last] = Record{}
		s.pool = s.pool[:last]
	}
	return stack(records, s.cfg.Shape), nil
}

// topUp moves already decoded records into the pool without blocking.
func (s *ShuffleBatcher) topUp() {
	for !s.done && len(s.pool) < s.cfg.Capacity {
		select {
		case rec, ok := <-s.decoded:
			if !ok {
				s.done = true
				return
			}
			s.pool = append(s.pool, rec)
		default:
			return
		}
	}
}

// Close stops the pipeline and releases the record file.
func (s *ShuffleBatcher) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	for range s.decoded {
	}
	s.pool = nil
	return s.file.Close()
}

// SequentialConfig configures a SequentialBatcher.
type SequentialConfig struct {
	Path       string
	BatchSize  int
	Repeat     bool // rewind at end of file instead of returning io.EOF
	Shape      ImageShape
	NumClasses int
	MeanStd    MeanStd
}

// SequentialBatcher reads records in file order and standardizes them. It never
// distorts. A trailing partial batch is dropped.
type SequentialBatcher struct {
	cfg    SequentialConfig
	file   *os.File
	reader *RecordReader
	closed bool
}

// NewSequentialBatcher opens the record file.
func NewSequentialBatcher(cfg SequentialConfig) (*SequentialBatcher, error) {
	if cfg.Shape == (ImageShape{}) {
		cfg.Shape = DefaultImageShape
	}
	if cfg.Path == "" {
		return nil, errors.New("data: sequential: record path is required")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("data: sequential: batch size must be positive, got %d", cfg.BatchSize)
	}
	if err := cfg.MeanStd.Validate(cfg.Shape); err != nil {
		return nil, err
	}
	//nolint:gosec // G304: path comes from the caller.
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("data: sequential: %w", err)
	}
	return &SequentialBatcher{cfg: cfg, file: f, reader: NewRecordReader(f)}, nil
}

// Next returns the next BatchSize records in order.
func (s *SequentialBatcher) Next(ctx context.Context) (*Batch, error) {
	if s.closed {
		return nil, ErrClosed
	}
	records := make([]Record, 0, s.cfg.BatchSize)
	rewound := false
	for len(records) < s.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		payload, err := s.reader.Next()
		if errors.Is(err, io.EOF) {
			if !s.cfg.Repeat || rewound {
				return nil, io.EOF
			}
			if err := s.rewind(); err != nil {
				return nil, err
			}
			rewound = true
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.cfg.Path, err)
		}
		rec, err := DecodeRecord(payload, s.cfg.Shape, s.cfg.NumClasses)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.cfg.Path, err)
		}
		rec.Image = Standardize(rec.Image, s.cfg.MeanStd)
		records = append(records, rec)
		rewound = false
	}
	return stack(records, s.cfg.Shape), nil
}

func (s *SequentialBatcher) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("data: sequential: rewind %s: %w", s.cfg.Path, err)
	}
	s.reader = NewRecordReader(s.file)
	return nil
}

// Close releases the record file.
func (s *SequentialBatcher) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// stack packs records into one [B, H, W, C] batch.
func stack(records []Record, shape ImageShape) *Batch {
	size := shape.Size()
	images := tensor.Zeros(tensor.Shape{len(records), shape.Height, shape.Width, shape.Channels})
	labels := make([]int, len(records))
	dst := images.Data()
	for i, rec := range records {
		copy(dst[i*size:(i+1)*size], rec.Image.Data())
		labels[i] = rec.Label
	}
	return &Batch{Images: images, Labels: labels}
}

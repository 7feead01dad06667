package cache

import (
	"container/list"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// DefaultMaxBytes is the default memory limit of a BlockCache.
const DefaultMaxBytes int64 = 32 << 20

// BlockCache is an in-memory, least-recently-used cache of fixed-size
// blocks read from wrapped ByteSources. It is safe for concurrent use.
type BlockCache struct {
	maxBytes   int64              // maximum cache size (0 = unlimited)
	mu         sync.Mutex         // guards lru, blocks and bytes
	lru        *list.List         // front is most recently used
	blocks     map[blockKey]*list.Element
	bytes      int64              // current total size of cached blocks
	nextSource atomic.Uint64      // identity handed to each wrapped source
	fetchGroup singleflight.Group // deduplicates concurrent fetches for same block
	hits       atomic.Int64
	misses     atomic.Int64
}

type blockKey struct {
	source uint64
	index  int64
}

type block struct {
	key  blockKey
	data []byte
}

// BlockCacheOption configures a BlockCache.
type BlockCacheOption func(*BlockCache)

// WithMaxBytes sets the maximum size in bytes for the block cache.
// Values <= 0 disable the limit.
func WithMaxBytes(n int64) BlockCacheOption {
	return func(c *BlockCache) {
		c.maxBytes = max(n, 0)
	}
}

// NewBlockCache creates an empty block cache.
func NewBlockCache(opts ...BlockCacheOption) *BlockCache {
	c := &BlockCache{
		maxBytes: DefaultMaxBytes,
		lru:      list.New(),
		blocks:   make(map[blockKey]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wrap returns a ByteSource that caches reads from src in fixed-size blocks.
func (c *BlockCache) Wrap(src ByteSource, opts ...WrapOption) (ByteSource, error) {
	if src == nil {
		return nil, errors.New("block cache: source is nil")
	}
	cfg := DefaultWrapConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BlockSize <= 0 {
		return nil, errors.New("block cache: block size must be > 0")
	}
	if cfg.BlockSize > math.MaxInt {
		return nil, errors.New("block cache: block size exceeds max int")
	}
	if cfg.MaxBlocksPerRead < 0 {
		return nil, errors.New("block cache: max blocks per read must be >= 0")
	}
	return &cachedSource{
		src:              src,
		cache:            c,
		id:               c.nextSource.Add(1),
		blockSize:        cfg.BlockSize,
		maxBlocksPerRead: cfg.MaxBlocksPerRead,
	}, nil
}

// MaxBytes returns the configured cache size limit (0 = unlimited).
func (c *BlockCache) MaxBytes() int64 {
	return c.maxBytes
}

// SizeBytes returns the current cache size in bytes.
func (c *BlockCache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Stats returns the number of block lookups served from memory and from
// the wrapped sources.
func (c *BlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Prune evicts least recently used blocks until the cache is at or below
// targetBytes. Returns the number of bytes freed.
func (c *BlockCache) Prune(targetBytes int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictLocked(max(targetBytes, 0))
}

func (c *BlockCache) evictLocked(targetBytes int64) int64 {
	var freed int64
	for c.bytes > targetBytes {
		elem := c.lru.Back()
		if elem == nil {
			break
		}
		b := c.lru.Remove(elem).(*block) //nolint:errcheck // list only holds *block
		delete(c.blocks, b.key)
		c.bytes -= int64(len(b.data))
		freed += int64(len(b.data))
	}
	return freed
}

func (c *BlockCache) lookup(key blockKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.blocks[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return elem.Value.(*block).data, true //nolint:errcheck // list only holds *block
}

func (c *BlockCache) store(key blockKey, data []byte) {
	size := int64(len(data))
	if size == 0 || (c.maxBytes > 0 && size > c.maxBytes) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.blocks[key]; ok {
		return
	}
	if c.maxBytes > 0 {
		c.evictLocked(c.maxBytes - size)
	}
	c.blocks[key] = c.lru.PushFront(&block{key: key, data: data})
	c.bytes += size
}

func (c *BlockCache) getBlock(key blockKey, blockLen int64, fetch func() ([]byte, error)) ([]byte, error) {
	if data, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return data, nil
	}
	flightKey := strconv.FormatUint(key.source, 16) + ":" + strconv.FormatInt(key.index, 16)
	result, err, _ := c.fetchGroup.Do(flightKey, func() (any, error) {
		if data, ok := c.lookup(key); ok {
			c.hits.Add(1)
			return data, nil
		}
		c.misses.Add(1)
		data, err := fetch()
		if err != nil {
			return nil, err
		}
		if int64(len(data)) != blockLen {
			return nil, io.ErrUnexpectedEOF
		}
		c.store(key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil //nolint:errcheck // type assertion always succeeds when err is nil
}

// cachedSource wraps a ByteSource with block-level caching.
type cachedSource struct {
	src              ByteSource
	cache            *BlockCache
	id               uint64
	blockSize        int64
	maxBlocksPerRead int
}

func (s *cachedSource) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	size := s.src.Size()
	if off >= size {
		return 0, io.EOF
	}

	expected := int64(len(p))
	if off+expected > size {
		expected = size - off
	}

	startBlock := off / s.blockSize
	endBlock := (off + expected - 1) / s.blockSize
	blockCount := endBlock - startBlock + 1

	if s.maxBlocksPerRead > 0 && blockCount > int64(s.maxBlocksPerRead) {
		return s.src.ReadAt(p, off)
	}

	var n int64
	for blockIndex := startBlock; blockIndex <= endBlock; blockIndex++ {
		blockStart := blockIndex * s.blockSize
		blockEnd := min(blockStart+s.blockSize, size)
		blockLen := blockEnd - blockStart

		data, err := s.cache.getBlock(blockKey{source: s.id, index: blockIndex}, blockLen, func() ([]byte, error) {
			return s.readBlockFromSource(blockStart, blockLen)
		})
		if err != nil {
			return int(n), err
		}

		copyStart := max(off, blockStart)
		copyEnd := min(off+expected, blockEnd)
		srcOffset := copyStart - blockStart
		dstOffset := copyStart - off
		length := copyEnd - copyStart

		if length > 0 {
			copy(p[dstOffset:dstOffset+length], data[srcOffset:srcOffset+length])
			n += length
		}
	}

	if expected < int64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

func (s *cachedSource) Size() int64 {
	return s.src.Size()
}

func (s *cachedSource) readBlockFromSource(off, length int64) ([]byte, error) {
	buf := make([]byte, int(length))
	n, err := s.src.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if int64(n) != length {
		return nil, io.ErrUnexpectedEOF
	}
	return buf, nil
}

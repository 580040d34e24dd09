// Package cache keeps synthesized audio so repeated utterances skip the
// engine. Entries live in a memory LRU and, when a directory is configured,
// on disk. Both levels store zstd-compressed PCM.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// ErrItemTooLarge is returned when an entry exceeds the capacity of a level.
var ErrItemTooLarge = errors.New("item too large for cache")

const (
	fileSuffix = ".pcm.zst"
	headerSize = 8
)

// Config controls cache sizes and location.
type Config struct {
	Enabled          bool   `yaml:"enabled" env:"TTS_CACHE_ENABLED"`
	MemoryBytes      int64  `yaml:"memory_bytes" env:"TTS_CACHE_MEMORY_BYTES"`
	Dir              string `yaml:"dir" env:"TTS_CACHE_DIR"`
	DiskBytes        int64  `yaml:"disk_bytes" env:"TTS_CACHE_DISK_BYTES"`
	CompressionLevel int    `yaml:"compression_level" env:"TTS_CACHE_COMPRESSION_LEVEL"`
}

// DefaultConfig returns a 32 MiB memory cache with no disk level.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		MemoryBytes:      32 << 20,
		DiskBytes:        256 << 20,
		CompressionLevel: 3,
	}
}

// Validate checks the cache configuration.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MemoryBytes <= 0 {
		return fmt.Errorf("memory_bytes must be positive, got %d", c.MemoryBytes)
	}
	if c.Dir != "" && c.DiskBytes <= 0 {
		return fmt.Errorf("disk_bytes must be positive, got %d", c.DiskBytes)
	}
	if c.CompressionLevel < 1 || c.CompressionLevel > 22 {
		return fmt.Errorf("compression_level must be between 1 and 22, got %d", c.CompressionLevel)
	}
	return nil
}

// Entry is one synthesized utterance.
type Entry struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Stats reports cache activity.
type Stats struct {
	Hits       int64
	Misses     int64
	Items      int
	MemorySize int64 // Compressed bytes held in memory
	DiskSize   int64
	HitRate    float64
}

// Key derives the cache key for an utterance.
func Key(engineID, text, voice string, speed int) string {
	h := sha256.New()
	for _, part := range []string{engineID, text, voice, strconv.Itoa(speed)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

type memoryEntry struct {
	key  string
	blob []byte
}

// Cache is safe for concurrent use.
type Cache struct {
	cfg     Config
	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List
	size     int64
	diskSize int64
	hits     int64
	misses   int64
}

// New creates a cache. When cfg.Dir is set the directory is created and its
// existing entries are counted against DiskBytes.
func New(cfg Config) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(cfg.CompressionLevel)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	c := &Cache{
		cfg:      cfg,
		encoder:  encoder,
		decoder:  decoder,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
	}

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		c.diskSize = c.scanDisk()
	}
	return c, nil
}

// Get returns the entry for key, checking memory first and then disk.
// Disk hits are promoted into memory.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		entry, err := c.decode(elem.Value.(*memoryEntry).blob)
		if err == nil {
			c.hits++
			return entry, true
		}
		c.removeElement(elem)
	}

	if c.cfg.Dir != "" {
		path := c.path(key)
		blob, err := os.ReadFile(path)
		if err == nil {
			entry, err := c.decode(blob)
			if err == nil {
				now := time.Now()
				os.Chtimes(path, now, now) //nolint:errcheck
				c.putMemory(key, blob)
				c.hits++
				return entry, true
			}
			c.removeFile(path)
		}
	}

	c.misses++
	return Entry{}, false
}

// Put stores entry under key in every configured level.
func (c *Cache) Put(key string, entry Entry) error {
	if len(entry.Data) == 0 {
		return nil
	}
	blob := c.encode(entry)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.putMemory(key, blob); err != nil {
		return err
	}
	if c.cfg.Dir == "" {
		return nil
	}
	return c.putDisk(key, blob)
}

// Clear drops every entry from both levels.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.eviction.Init()
	c.size = 0

	if c.cfg.Dir == "" {
		return nil
	}
	for _, f := range c.diskFiles() {
		c.removeFile(f.path)
	}
	c.diskSize = 0
	return nil
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:       c.hits,
		Misses:     c.misses,
		Items:      len(c.items),
		MemorySize: c.size,
		DiskSize:   c.diskSize,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// Close releases the codec resources.
func (c *Cache) Close() error {
	c.decoder.Close()
	return c.encoder.Close()
}

func (c *Cache) putMemory(key string, blob []byte) error {
	size := int64(len(blob))
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	if size > c.cfg.MemoryBytes {
		return ErrItemTooLarge
	}
	for c.size+size > c.cfg.MemoryBytes && c.eviction.Len() > 0 {
		c.removeElement(c.eviction.Back())
	}
	c.items[key] = c.eviction.PushFront(&memoryEntry{key: key, blob: blob})
	c.size += size
	return nil
}

func (c *Cache) removeElement(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	c.eviction.Remove(elem)
	delete(c.items, entry.key)
	c.size -= int64(len(entry.blob))
}

func (c *Cache) putDisk(key string, blob []byte) error {
	size := int64(len(blob))
	if size > c.cfg.DiskBytes {
		return ErrItemTooLarge
	}
	path := c.path(key)
	if info, err := os.Stat(path); err == nil {
		c.diskSize -= info.Size()
	}

	if c.diskSize+size > c.cfg.DiskBytes {
		files := c.diskFiles()
		sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })
		for _, f := range files {
			if c.diskSize+size <= c.cfg.DiskBytes {
				break
			}
			if f.path == path {
				continue
			}
			c.removeFile(f.path)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	c.diskSize += size
	return nil
}

type diskFile struct {
	path string
	size int64
	mod  time.Time
}

func (c *Cache) diskFiles() []diskFile {
	var files []diskFile
	filepath.WalkDir(c.cfg.Dir, func(path string, d fs.DirEntry, err error) error { //nolint:errcheck
		if err != nil || d.IsDir() || !strings.HasSuffix(path, fileSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, diskFile{path: path, size: info.Size(), mod: info.ModTime()})
		return nil
	})
	return files
}

func (c *Cache) scanDisk() int64 {
	var total int64
	for _, f := range c.diskFiles() {
		total += f.size
	}
	return total
}

func (c *Cache) removeFile(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if os.Remove(path) == nil {
		c.diskSize -= info.Size()
	}
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.cfg.Dir, key+fileSuffix)
}

// encode packs the format header and PCM and compresses the result.
func (c *Cache) encode(entry Entry) []byte {
	raw := make([]byte, headerSize, headerSize+len(entry.Data))
	binary.LittleEndian.PutUint32(raw[0:], uint32(entry.SampleRate))
	binary.LittleEndian.PutUint16(raw[4:], uint16(entry.Channels))
	raw = append(raw, entry.Data...)
	return c.encoder.EncodeAll(raw, nil)
}

func (c *Cache) decode(blob []byte) (Entry, error) {
	raw, err := c.decoder.DecodeAll(blob, nil)
	if err != nil {
		return Entry{}, err
	}
	if len(raw) < headerSize {
		return Entry{}, errors.New("cache entry truncated")
	}
	return Entry{
		SampleRate: int(binary.LittleEndian.Uint32(raw[0:])),
		Channels:   int(binary.LittleEndian.Uint16(raw[4:])),
		Data:       raw[headerSize:],
	}, nil
}

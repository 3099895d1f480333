package device

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/mixer/driver"
	"github.com/gogpu/mixer/driver/soft"
	"github.com/gogpu/mixer/frame"
	"github.com/gogpu/mixer/future"
)

// fakeDriver wraps the software driver to count native work and to
// simulate old versions and stuck fences.
type fakeDriver struct {
	driver.Driver
	major, minor int
	staleFences  bool

	newTextures atomic.Int32
	newBuffers  atomic.Int32
	uploads     atomic.Int32
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{Driver: soft.New(), major: soft.VersionMajor, minor: soft.VersionMinor}
}

func (f *fakeDriver) open() (driver.Driver, error) { return f, nil }

func (f *fakeDriver) Version() (int, int, string) { return f.major, f.minor, "fake" }

func (f *fakeDriver) NewTexture(desc driver.TextureDescriptor) (driver.Texture, error) {
	f.newTextures.Add(1)
	return f.Driver.NewTexture(desc)
}

func (f *fakeDriver) NewBuffer(desc driver.BufferDescriptor) (driver.Buffer, error) {
	f.newBuffers.Add(1)
	return f.Driver.NewBuffer(desc)
}

func (f *fakeDriver) CopyBufferToTexture(src driver.Buffer, dst driver.Texture) error {
	f.uploads.Add(1)
	return f.Driver.CopyBufferToTexture(src, dst)
}

func (f *fakeDriver) FenceSync() (driver.Fence, error) {
	if f.staleFences {
		return staleFence{}, nil
	}
	return f.Driver.FenceSync()
}

// staleFence never signals.
type staleFence struct{}

func (staleFence) Wait(time.Duration) bool { return false }
func (staleFence) Delete()                 {}

// logBuffer collects log output from any goroutine.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogs(t *testing.T) *logBuffer {
	t.Helper()
	lb := &logBuffer{}
	SetLogger(slog.New(slog.NewTextHandler(lb, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { SetLogger(nil) })
	return lb
}

func newTestDevice(t *testing.T, fd *fakeDriver, opts ...Option) *Device {
	t.Helper()
	d, err := New(context.Background(), append([]Option{WithDriver(fd.open)}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d
}

// flush waits until every task queued so far, including posted releases,
// has run.
func flush(t *testing.T, d *Device) {
	t.Helper()
	if err := d.Invoke(context.Background(), func(context.Context) error { return nil }, PriorityNormal); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
}

func readback(t *testing.T, d *Device, tex *Texture) *future.Future[*frame.Array] {
	t.Helper()
	var f *future.Future[*frame.Array]
	err := d.Invoke(context.Background(), func(ctx context.Context) error {
		var err error
		f, err = d.ReadbackAsync(ctx, tex)
		return err
	}, PriorityHigh)
	if err != nil {
		t.Fatalf("ReadbackAsync() error = %v", err)
	}
	return f
}

func TestNewVersionCheck(t *testing.T) {
	tests := []struct {
		name         string
		major, minor int
		wantErr      bool
	}{
		{"minimum", 4, 5, false},
		{"newer minor", 4, 6, false},
		{"newer major", 5, 0, false},
		{"older minor", 4, 4, true},
		{"older major", 3, 9, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fd := newFakeDriver()
			fd.major, fd.minor = tt.major, tt.minor
			d, err := New(context.Background(), WithDriver(fd.open))
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("New() error = %v", err)
				}
				_ = d.Close(context.Background())
				return
			}
			if !errors.Is(err, ErrInvalidOperation) || !errors.Is(err, ErrNotSupported) {
				t.Errorf("New() error = %v, want ErrInvalidOperation and ErrNotSupported", err)
			}
		})
	}
}

func TestNewUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), WithDriverName("missing"))
	if !errors.Is(err, ErrInvalidOperation) || !errors.Is(err, driver.ErrUnknownDriver) {
		t.Errorf("New() error = %v, want ErrInvalidOperation wrapping ErrUnknownDriver", err)
	}
}

func TestNewRegisteredDriver(t *testing.T) {
	d, err := New(context.Background())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer d.Close(context.Background())

	if v := d.Version(context.Background()); !strings.HasPrefix(v, "4.5 ") {
		t.Errorf("Version() = %q, want prefix %q", v, "4.5 ")
	}
	size, err := d.MaxTextureSize(context.Background())
	if err != nil || size <= 0 {
		t.Errorf("MaxTextureSize() = %d, %v, want positive", size, err)
	}
}

func TestContextOnlyOperations(t *testing.T) {
	d := newTestDevice(t, newFakeDriver())
	ctx := context.Background()

	if _, err := d.CreateTexture(ctx, 4, 4, 4, false, true); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("CreateTexture() error = %v, want ErrInvalidOperation", err)
	}

	var tex *Texture
	err := d.Invoke(ctx, func(ctx context.Context) error {
		var err error
		tex, err = d.CreateTexture(ctx, 4, 4, 4, false, true)
		return err
	}, PriorityHigh)
	if err != nil {
		t.Fatalf("CreateTexture() on context error = %v", err)
	}
	defer tex.Release()

	if _, err := d.ReadbackAsync(ctx, tex); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("ReadbackAsync() error = %v, want ErrInvalidOperation", err)
	}
	if err := d.Draw(ctx, &driver.DrawParams{}); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("Draw() error = %v, want ErrInvalidOperation", err)
	}
}

func TestCreateTextureInvalidSize(t *testing.T) {
	d := newTestDevice(t, newFakeDriver())
	tests := []struct {
		name                  string
		width, height, stride int
	}{
		{"zero width", 0, 4, 4},
		{"negative height", 4, -1, 4},
		{"stride 0", 4, 4, 0},
		{"stride 5", 4, 4, 5},
		{"too wide", d.maxTexture + 1, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.Invoke(context.Background(), func(ctx context.Context) error {
				_, err := d.CreateTexture(ctx, tt.width, tt.height, tt.stride, false, false)
				return err
			}, PriorityNormal)
			if !errors.Is(err, ErrInvalidSize) {
				t.Errorf("CreateTexture() error = %v, want ErrInvalidSize", err)
			}
		})
	}
}

func TestTexturePoolReuse(t *testing.T) {
	fd := newFakeDriver()
	d := newTestDevice(t, fd)

	err := d.Invoke(context.Background(), func(ctx context.Context) error {
		t1, err := d.CreateTexture(ctx, 8, 4, 4, false, true)
		if err != nil {
			return err
		}
		native := t1.Native()
		t1.Release()
		t1.Release()

		if got := d.Stats().PooledTextures; got != 1 {
			t.Errorf("PooledTextures after double release = %d, want 1", got)
		}

		t2, err := d.CreateTexture(ctx, 8, 4, 4, false, true)
		if err != nil {
			return err
		}
		defer t2.Release()
		if t2.Native() != native {
			t.Error("CreateTexture() allocated instead of reusing the pooled texture")
		}
		if got := fd.newTextures.Load(); got != 1 {
			t.Errorf("native allocations = %d, want 1", got)
		}

		t3, err := d.CreateTexture(ctx, 8, 4, 4, true, true)
		if err != nil {
			return err
		}
		defer t3.Release()
		if got := fd.newTextures.Load(); got != 2 {
			t.Errorf("native allocations for a mipmapped shape = %d, want 2", got)
		}
		return nil
	}, PriorityHigh)
	if err != nil {
		t.Fatal(err)
	}
}

func TestMaxPooledPerBucket(t *testing.T) {
	fd := newFakeDriver()
	d := newTestDevice(t, fd, WithMaxPooledPerBucket(1))

	err := d.Invoke(context.Background(), func(ctx context.Context) error {
		a, err := d.CreateTexture(ctx, 2, 2, 1, false, false)
		if err != nil {
			return err
		}
		b, err := d.CreateTexture(ctx, 2, 2, 1, false, false)
		if err != nil {
			return err
		}
		a.Release()
		b.Release()
		return nil
	}, PriorityHigh)
	if err != nil {
		t.Fatal(err)
	}
	flush(t, d)

	s := d.Stats()
	if s.PooledTextures != 1 || s.Textures != 1 {
		t.Errorf("Stats() = %d pooled, %d live, want 1 and 1", s.PooledTextures, s.Textures)
	}
}

func TestCreateBufferPooling(t *testing.T) {
	fd := newFakeDriver()
	d := newTestDevice(t, fd)
	ctx := context.Background()

	b, err := d.CreateBuffer(ctx, 64, driver.UsageWriteOnly)
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	native := b.Native()
	b.Release()
	flush(t, d)

	b2, err := d.CreateBuffer(ctx, 64, driver.UsageWriteOnly)
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	defer b2.Release()
	if b2.Native() != native {
		t.Error("CreateBuffer() allocated instead of reusing the pooled buffer")
	}

	r, err := d.CreateBuffer(ctx, 64, driver.UsageReadOnly)
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	defer r.Release()
	if r.Native() == native {
		t.Error("read buffer taken from the write pool")
	}
	if got := fd.newBuffers.Load(); got != 2 {
		t.Errorf("native allocations = %d, want 2", got)
	}

	if _, err := d.CreateBuffer(ctx, 0, driver.UsageReadOnly); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("CreateBuffer(0) error = %v, want ErrInvalidSize", err)
	}
}

func TestCreateBufferConcurrent(t *testing.T) {
	fd := newFakeDriver()
	d := newTestDevice(t, fd)

	const workers = 8
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				b, err := d.CreateBuffer(context.Background(), 128, driver.UsageWriteOnly)
				if err != nil {
					t.Errorf("CreateBuffer() error = %v", err)
					return
				}
				b.Bytes()[0] = 1
				b.Release()
			}
		}()
	}
	wg.Wait()
	flush(t, d)

	s := d.Stats()
	if s.PooledBuffers != s.WriteBuffers {
		t.Errorf("pooled buffers = %d, want all %d live buffers", s.PooledBuffers, s.WriteBuffers)
	}
	if got := fd.newBuffers.Load(); got > 8*20 || got < 1 {
		t.Errorf("native allocations = %d, want 1..%d", got, workers*20)
	}
}

func TestUploadCache(t *testing.T) {
	fd := newFakeDriver()
	d := newTestDevice(t, fd)
	ctx := context.Background()

	arr, err := d.CreateArray(ctx, 16)
	if err != nil {
		t.Fatalf("CreateArray() error = %v", err)
	}
	for i := range arr.Bytes() {
		arr.Bytes()[i] = byte(i)
	}
	native := arr.Storage().(*Buffer).Native()

	t1, err := d.UploadAsync(ctx, arr, 2, 2, 4, false).Get()
	if err != nil {
		t.Fatalf("UploadAsync() error = %v", err)
	}
	t2, err := d.UploadAsync(ctx, arr, 2, 2, 4, false).Get()
	if err != nil {
		t.Fatalf("UploadAsync() error = %v", err)
	}
	if t1 != t2 {
		t.Error("second upload of the same buffer returned a different texture")
	}
	if got := fd.uploads.Load(); got != 1 {
		t.Errorf("uploads = %d, want 1", got)
	}
	if s := d.Stats(); s.CacheHits != 1 || s.CacheEntries != 1 {
		t.Errorf("Stats() cache = %d hits %d entries, want 1 and 1", s.CacheHits, s.CacheEntries)
	}
	t1.Release()
	t2.Release()

	arr.Release()
	flush(t, d)
	if got := d.Stats().CacheEntries; got != 0 {
		t.Errorf("CacheEntries after release = %d, want 0", got)
	}

	arr2, err := d.CreateArray(ctx, 16)
	if err != nil {
		t.Fatalf("CreateArray() error = %v", err)
	}
	defer arr2.Release()
	if arr2.Storage().(*Buffer).Native() != native {
		t.Fatal("CreateArray() did not reuse the released buffer")
	}
	t3, err := d.UploadAsync(ctx, arr2, 2, 2, 4, false).Get()
	if err != nil {
		t.Fatalf("UploadAsync() error = %v", err)
	}
	defer t3.Release()
	if got := fd.uploads.Load(); got != 2 {
		t.Errorf("uploads after eviction = %d, want 2", got)
	}
}

func TestUploadShapeChangeMisses(t *testing.T) {
	fd := newFakeDriver()
	d := newTestDevice(t, fd)
	ctx := context.Background()

	arr, err := d.CreateArray(ctx, 16)
	if err != nil {
		t.Fatal(err)
	}
	defer arr.Release()

	a, err := d.UploadAsync(ctx, arr, 2, 2, 4, false).Get()
	if err != nil {
		t.Fatal(err)
	}
	defer a.Release()
	b, err := d.UploadAsync(ctx, arr, 4, 4, 1, false).Get()
	if err != nil {
		t.Fatal(err)
	}
	defer b.Release()

	if a == b {
		t.Error("upload with another shape hit the cache")
	}
	if got := fd.uploads.Load(); got != 2 {
		t.Errorf("uploads = %d, want 2", got)
	}
}

func TestUploadReadbackRoundTrip(t *testing.T) {
	d := newTestDevice(t, newFakeDriver())
	ctx := context.Background()

	src := make([]byte, 3*2*4)
	for i := range src {
		src[i] = byte(i * 7)
	}
	tex, err := d.UploadAsync(ctx, frame.WrapBytes(src), 3, 2, 4, false).Get()
	if err != nil {
		t.Fatalf("UploadAsync() error = %v", err)
	}
	defer tex.Release()

	f := readback(t, d, tex)
	if !f.IsDeferred() {
		t.Error("ReadbackAsync() returned an eager future")
	}
	arr, err := f.Get()
	if err != nil {
		t.Fatalf("readback Get() error = %v", err)
	}
	defer arr.Release()
	if !bytes.Equal(arr.Bytes(), src) {
		t.Errorf("readback = %v, want %v", arr.Bytes(), src)
	}
	if got := d.Stats().CacheEntries; got != 0 {
		t.Errorf("CacheEntries for a host upload = %d, want 0", got)
	}
}

func TestUploadInvalidSize(t *testing.T) {
	d := newTestDevice(t, newFakeDriver())
	_, err := d.UploadAsync(context.Background(), frame.WrapBytes(make([]byte, 8)), 2, 2, 4, false).Get()
	if !errors.Is(err, ErrInvalidSize) {
		t.Errorf("UploadAsync() error = %v, want ErrInvalidSize", err)
	}
}

func TestReadbackAfterGC(t *testing.T) {
	d := newTestDevice(t, newFakeDriver())
	ctx := context.Background()

	src := bytes.Repeat([]byte{1, 2, 3, 4}, 16)
	tex, err := d.UploadAsync(ctx, frame.WrapBytes(src), 4, 4, 4, false).Get()
	if err != nil {
		t.Fatal(err)
	}
	f := readback(t, d, tex)
	tex.Release()

	if _, err := d.GC(ctx).Get(); err != nil {
		t.Fatalf("GC() error = %v", err)
	}
	if s := d.Stats(); s.PooledTextures != 0 || s.PooledBuffers != 0 {
		t.Errorf("pools after GC = %d textures %d buffers, want empty", s.PooledTextures, s.PooledBuffers)
	}

	arr, err := f.Get()
	if err != nil {
		t.Fatalf("readback Get() error = %v", err)
	}
	defer arr.Release()
	if !bytes.Equal(arr.Bytes(), src) {
		t.Error("readback after GC lost its contents")
	}
}

func TestReadbackFenceTimeout(t *testing.T) {
	logs := captureLogs(t)
	fd := newFakeDriver()
	fd.staleFences = true
	d := newTestDevice(t, fd, WithFenceTimeout(time.Millisecond))
	ctx := context.Background()

	src := bytes.Repeat([]byte{9}, 16)
	tex, err := d.UploadAsync(ctx, frame.WrapBytes(src), 2, 2, 4, false).Get()
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Release()

	// A stuck fence still yields the mapped bytes, which may be stale on
	// a real device.
	arr, err := readback(t, d, tex).Get()
	if err != nil {
		t.Fatalf("readback Get() error = %v", err)
	}
	defer arr.Release()
	if !bytes.Equal(arr.Bytes(), src) {
		t.Errorf("readback = %v, want %v", arr.Bytes(), src)
	}
	if got := d.Stats().FenceTimeouts; got != 1 {
		t.Errorf("FenceTimeouts = %d, want 1", got)
	}
	if !strings.Contains(logs.String(), "fence wait timed out") {
		t.Errorf("logs = %q, want a fence timeout warning", logs.String())
	}
}

func TestBufferOutlivesDevice(t *testing.T) {
	logs := captureLogs(t)
	fd := newFakeDriver()
	d, err := New(context.Background(), WithDriver(fd.open))
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.CreateBuffer(context.Background(), 32, driver.UsageReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	b.Release()
	if !strings.Contains(logs.String(), "buffer outlived device") {
		t.Errorf("logs = %q, want a buffer outlived device message", logs.String())
	}
}

func TestClosedDevice(t *testing.T) {
	fd := newFakeDriver()
	d, err := New(context.Background(), WithDriver(fd.open))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := d.Close(ctx); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if _, err := d.CreateBuffer(ctx, 4, driver.UsageWriteOnly); !errors.Is(err, ErrClosed) {
		t.Errorf("CreateBuffer() error = %v, want ErrClosed", err)
	}
	if _, err := d.UploadAsync(ctx, frame.WrapBytes(make([]byte, 4)), 1, 1, 4, false).Get(); !errors.Is(err, ErrClosed) {
		t.Errorf("UploadAsync() error = %v, want ErrClosed", err)
	}
	if v := d.Version(ctx); v != "Not found" {
		t.Errorf("Version() = %q, want %q", v, "Not found")
	}
}

func TestAllocateBuffers(t *testing.T) {
	fd := newFakeDriver()
	d := newTestDevice(t, fd)
	ctx := context.Background()

	if err := d.AllocateBuffers(ctx, 3, 8, 4, 4, false, false); err != nil {
		t.Fatalf("AllocateBuffers() error = %v", err)
	}
	if err := d.AllocateBuffers(ctx, 2, 8, 4, 4, false, true); err != nil {
		t.Fatalf("AllocateBuffers(forChannel) error = %v", err)
	}

	want := []PoolInfo{
		{Kind: "texture", Width: 8, Height: 4, Stride: 4, Size: 128, Count: 3},
		{Kind: "buffer", Usage: driver.UsageWriteOnly, Size: 128, Count: 3},
		{Kind: "buffer", Usage: driver.UsageReadOnly, Size: 128, Count: 2},
	}
	got := d.Info()
	if len(got) != len(want) {
		t.Fatalf("Info() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Info()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	allocs := fd.newTextures.Load()
	err := d.Invoke(ctx, func(ctx context.Context) error {
		tex, err := d.CreateTexture(ctx, 8, 4, 4, false, true)
		if err != nil {
			return err
		}
		tex.Release()
		return nil
	}, PriorityHigh)
	if err != nil {
		t.Fatal(err)
	}
	if got := fd.newTextures.Load(); got != allocs {
		t.Errorf("native allocations after prewarm = %d, want %d", got, allocs)
	}
}

func TestParallelCopy(t *testing.T) {
	sizes := []int{0, 7, minCopyChunk - 1, 3*minCopyChunk + 5}
	for _, n := range sizes {
		src := make([]byte, n)
		for i := range src {
			src[i] = byte(i % 251)
		}
		dst := make([]byte, n)
		parallelCopy(dst, src)
		if !bytes.Equal(dst, src) {
			t.Errorf("parallelCopy(%d bytes) mismatch", n)
		}
	}
}

func TestStatsString(t *testing.T) {
	s := Stats{Textures: 2, TextureBytes: 1 << 20, PooledTextures: 1, CacheHits: 3}
	got := s.String()
	for _, want := range []string{"Device[", "2 textures 1.0 MB (1 pooled)", "(3/0 hit/miss)"} {
		if !strings.Contains(got, want) {
			t.Errorf("Stats.String() = %q, want substring %q", got, want)
		}
	}
}

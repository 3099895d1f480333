package frame

import "sync/atomic"

// Array is a reference-counted byte array. Its storage may be a device
// buffer, in which case the bytes are that buffer's mapped memory and
// Storage returns the buffer.
//
// Arrays start with one reference. When the last reference is released the
// release function runs once. All methods are safe on a nil *Array.
type Array struct {
	data    []byte
	storage any
	release func()
	refs    atomic.Int32
}

// NewArray wraps data. storage is returned by Storage and release runs once
// when the last reference goes away. Both may be nil.
func NewArray(data []byte, storage any, release func()) *Array {
	a := &Array{data: data, storage: storage, release: release}
	a.refs.Store(1)
	return a
}

// WrapBytes wraps host memory that needs no release.
func WrapBytes(data []byte) *Array {
	return NewArray(data, nil, nil)
}

// Bytes returns the array contents. The slice must not be used after the
// last Release.
func (a *Array) Bytes() []byte {
	if a == nil {
		return nil
	}
	return a.data
}

// Len returns the number of bytes.
func (a *Array) Len() int {
	if a == nil {
		return 0
	}
	return len(a.data)
}

// Storage returns the object backing the array, or nil for host memory.
func (a *Array) Storage() any {
	if a == nil {
		return nil
	}
	return a.storage
}

// Retain adds a reference and returns a.
func (a *Array) Retain() *Array {
	if a != nil {
		a.refs.Add(1)
	}
	return a
}

// Release drops a reference. Extra releases are ignored.
func (a *Array) Release() {
	if a == nil {
		return
	}
	for {
		n := a.refs.Load()
		if n <= 0 {
			return
		}
		if a.refs.CompareAndSwap(n, n-1) {
			if n == 1 && a.release != nil {
				a.release()
			}
			return
		}
	}
}

// Refs returns the current reference count.
func (a *Array) Refs() int {
	if a == nil {
		return 0
	}
	return int(a.refs.Load())
}

// Copyright 2024 Google LLC. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package hostenv is an execution environment for running applications on a
// development host instead of the device.
//
// Code in an image can not execute on the host, so every address an
// application calls (its init functions, its entry point and the firmware API
// functions it imports) must have a native Go function registered for it.
package hostenv

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"weak"

	"github.com/golang/glog"

	"github.com/DarkFlippers/unleashed-firmware-sub041/api"
	"github.com/DarkFlippers/unleashed-firmware-sub041/application"
)

// ErrUnknownFunction is returned by Call for an address with no function.
var ErrUnknownFunction = errors.New("no function at address")

// DefaultExportBase is where Export starts handing out addresses, the start
// of the device's flash.
const DefaultExportBase = 0x08000000

// Func is a native function callable from an application.
type Func func(arg uint32) int32

// Env implements api.Environment and api.Resolver for hosted runs.
type Env struct {
	version api.APIVersion

	mu      sync.RWMutex
	funcs   map[uint32]Func
	exports map[string]uint32
	next    uint32
	last    weak.Pointer[application.App]
}

// New returns an environment exporting API version v.
func New(v api.APIVersion) *Env {
	return &Env{
		version: v,
		funcs:   make(map[uint32]Func),
		exports: make(map[string]uint32),
		next:    DefaultExportBase,
	}
}

// Register makes fn callable at addr. The Thumb bit of addr is ignored.
func (e *Env) Register(addr uint32, fn Func) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.funcs[addr&^1] = fn
}

// Export registers fn as the firmware API function name and returns its
// (Thumb) address.
func (e *Env) Export(name string, fn Func) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	addr := e.next
	e.next += 4
	e.funcs[addr] = fn
	e.exports[name] = addr | 1
	return addr | 1
}

// ExportData exports a firmware API variable living at addr.
func (e *Env) ExportData(name string, addr uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exports[name] = addr
}

// Resolve implements api.Resolver over the exported names.
func (e *Env) Resolve(name string) (uint32, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	addr, ok := e.exports[name]
	return addr, ok
}

// Version implements api.Resolver.
func (e *Env) Version() api.APIVersion {
	return e.version
}

// Call implements api.Environment.
func (e *Env) Call(addr uint32, arg uint32) (int32, error) {
	e.mu.RLock()
	fn, ok := e.funcs[addr&^1]
	e.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("call 0x%08x: %w", addr, ErrUnknownFunction)
	}
	return fn(arg), nil
}

// Thread is a goroutine standing in for an application thread.
type Thread struct {
	name string
	done chan struct{}
	ret  int32
}

// Join implements api.Thread. It may be called from any number of
// goroutines.
func (t *Thread) Join() int32 {
	<-t.done
	return t.ret
}

// Spawn implements api.Environment. Goroutine stacks grow on demand, so
// stackSize is only recorded.
func (e *Env) Spawn(name string, stackSize uint32, body func() int32) api.Thread {
	t := &Thread{name: name, done: make(chan struct{})}
	glog.V(1).Infof("thread %q: starting with %d bytes of stack", name, stackSize)
	go func() {
		defer close(t.done)
		t.ret = body()
		glog.V(1).Infof("thread %q: exited with %d", name, t.ret)
	}()
	return t
}

// Yield implements api.Environment.
func (e *Env) Yield() {
	runtime.Gosched()
}

// SetLastLoaded records a as the most recently loaded application. The
// reference is weak and does not keep a alive.
func (e *Env) SetLastLoaded(a *application.App) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = weak.Make(a)
}

// ClearLastLoaded forgets the most recently loaded application if it is a.
// An application loaded after a is kept.
func (e *Env) ClearLastLoaded(a *application.App) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last.Value() == a {
		e.last = weak.Pointer[application.App]{}
	}
}

// LastLoaded returns the most recently loaded application, or nil if there is
// none or it was closed.
func (e *Env) LastLoaded() *application.App {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last.Value()
}

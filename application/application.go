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

// Package application drives an application image from a file on storage to
// a running thread: preload and gate the manifest, map the image into
// memory, spawn its main thread and tear everything down again.
package application

import (
	"errors"
	"fmt"
	"io"

	"github.com/golang/glog"

	"github.com/DarkFlippers/unleashed-firmware-sub041/api"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/loader"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/manifest"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/memory"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/storage"
)

// ErrNotPreloaded is returned by operations which need a preloaded image.
var ErrNotPreloaded = errors.New("application is not preloaded")

// Options configures an App.
type Options struct {
	// Allocator provides memory for the image. Required.
	Allocator memory.Allocator
	// HardwareTarget is the target id of this device. Zero disables the
	// hardware target check.
	HardwareTarget uint16
	// YieldStep is how many relocations are processed between yields.
	YieldStep int
}

// LastLoadedHolder is implemented by environments which keep track of the
// most recently loaded application for debuggers.
type LastLoadedHolder interface {
	SetLastLoaded(*App)
	LastLoaded() *App
	// ClearLastLoaded forgets the most recently loaded application, but only
	// if it is the given one.
	ClearLastLoaded(*App)
}

// App is one application being loaded or run.
type App struct {
	storage  storage.Storage
	resolver api.Resolver
	env      api.Environment
	opts     Options

	path     string
	file     *loader.File
	manifest api.Manifest
	missing  *loader.MissingImportsError
	mapped   bool
	loaded   bool
	thread   api.Thread
	closed   bool
}

// New returns an App which loads images from s, links them against r and
// runs them in env.
func New(s storage.Storage, r api.Resolver, env api.Environment, opts Options) *App {
	return &App{storage: s, resolver: r, env: env, opts: opts}
}

func (a *App) open(path string) (*loader.File, error) {
	if a.closed {
		return nil, loader.ErrClosed
	}
	if a.file != nil {
		return nil, fmt.Errorf("%s is already preloaded", a.path)
	}
	f, err := a.storage.Open(path)
	if err != nil {
		return nil, err
	}
	a.path = path
	return loader.Open(f, a.resolver, loader.Options{
		Allocator: a.opts.Allocator,
		Caller:    a.env,
		Yield:     a.env.Yield,
		YieldStep: a.opts.YieldStep,
	})
}

// Preload opens the image at path, scans its section table and checks that
// its manifest is valid and compatible with the firmware. No memory is
// committed for the image's code or data.
func (a *App) Preload(path string) api.PreloadStatus {
	f, err := a.open(path)
	if err != nil {
		glog.Errorf("%s: %v", path, err)
		return api.PreloadInvalidFile
	}
	if err := f.LoadSectionTable(); err != nil {
		glog.Errorf("%s: %v", path, err)
		f.Close()
		return api.PreloadInvalidFile
	}
	m, ok := f.Manifest()
	if !ok {
		glog.Errorf("%s: no %s section", path, manifest.SectionName)
		f.Close()
		return api.PreloadInvalidFile
	}
	a.manifest = m
	if st := a.gate(); st != api.PreloadSuccess {
		f.Close()
		return st
	}
	a.file = f
	return api.PreloadSuccess
}

// PreloadManifest reads and checks only the manifest of the image at path.
// The image is not kept open, so MapToMemory can not follow.
func (a *App) PreloadManifest(path string) api.PreloadStatus {
	f, err := a.open(path)
	if err != nil {
		glog.Errorf("%s: %v", path, err)
		return api.PreloadInvalidFile
	}
	defer f.Close()

	res := f.ProcessSection(manifest.SectionName, func(r io.Reader, size uint32) error {
		b, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		a.manifest, err = manifest.Decode(b)
		return err
	})
	switch res {
	case loader.ProcessSuccess:
	case loader.ProcessNotFound:
		glog.Errorf("%s: no %s section", path, manifest.SectionName)
		return api.PreloadInvalidFile
	default:
		return api.PreloadInvalidManifest
	}
	return a.gate()
}

func (a *App) gate() api.PreloadStatus {
	m := a.manifest
	if !manifest.Validate(m) {
		glog.Errorf("%s: invalid manifest (magic 0x%08x, version %d)", a.path, m.Magic, m.Version)
		return api.PreloadInvalidManifest
	}
	if fw := a.resolver.Version(); !manifest.IsCompatible(m, fw) {
		switch {
		case manifest.IsTooOld(m, fw):
			glog.Errorf("%s: built for API %s, older than firmware API %s", a.path, m.APIVersion, fw)
		case manifest.IsTooNew(m, fw):
			glog.Errorf("%s: built for API %s, newer than firmware API %s", a.path, m.APIVersion, fw)
		}
		return api.PreloadAPIMismatch
	}
	if !manifest.IsTargetCompatible(m, a.opts.HardwareTarget) {
		glog.Errorf("%s: built for hardware target %d, this is %d", a.path, m.HardwareTarget, a.opts.HardwareTarget)
		return api.PreloadTargetMismatch
	}
	glog.V(1).Infof("%s: %v", a.path, m)
	return api.PreloadSuccess
}

// Manifest returns the manifest read by the last preload.
func (a *App) Manifest() api.Manifest {
	return a.manifest
}

// MapToMemory loads, links and relocates a preloaded image. On failure the
// image is torn down completely; MissingImports lists what could not be
// linked.
func (a *App) MapToMemory() api.LoadStatus {
	if a.file == nil || a.mapped || a.closed {
		glog.Errorf("MapToMemory: %v", ErrNotPreloaded)
		return api.LoadUnspecifiedError
	}
	a.mapped = true
	err := a.file.LoadSections()
	if err == nil {
		a.loaded = true
		if h, ok := a.env.(LastLoadedHolder); ok {
			h.SetLastLoaded(a)
		}
		glog.Infof("%s: loaded %q", a.path, a.manifest.AppName())
		return api.LoadSuccess
	}

	glog.Errorf("%s: %v", a.path, err)
	var mErr *loader.MissingImportsError
	switch {
	case errors.As(err, &mErr):
		a.missing = mErr
		return api.LoadMissingImports
	case errors.Is(err, memory.ErrNoFreeMemory):
		return api.LoadNoFreeMemory
	}
	return api.LoadUnspecifiedError
}

// MissingImports returns the undefined symbols the last MapToMemory could not
// resolve.
func (a *App) MissingImports() []string {
	if a.missing == nil {
		return nil
	}
	return a.missing.Symbols
}

// FailedRelocations returns every relocation the last MapToMemory could not
// apply.
func (a *App) FailedRelocations() []loader.RelocationError {
	if a.missing == nil {
		return nil
	}
	return a.missing.Relocations
}

// TrampolineCount returns the number of trampolines the loaded image needed.
func (a *App) TrampolineCount() int {
	if a.file == nil {
		return 0
	}
	return a.file.TrampolineCount()
}

// Spawn starts the application's main thread with a stack of the size the
// manifest asks for. The thread runs the init arrays, the entry point with
// arg, and the fini arrays, and yields the entry point's result.
func (a *App) Spawn(arg uint32) (api.Thread, error) {
	switch {
	case a.closed:
		return nil, loader.ErrClosed
	case !a.loaded:
		return nil, loader.ErrNotLoaded
	case a.thread != nil:
		return nil, fmt.Errorf("%s is already running", a.path)
	}
	name := a.manifest.AppName()
	a.thread = a.env.Spawn(name, uint32(a.manifest.StackSize), func() int32 {
		return a.run(arg)
	})
	glog.Infof("%s: spawned %q with %d bytes of stack", a.path, name, a.manifest.StackSize)
	return a.thread, nil
}

func (a *App) run(arg uint32) int32 {
	if err := a.file.CallInit(); err != nil {
		glog.Errorf("%s: init: %v", a.path, err)
	}
	entry, err := a.file.EntryPoint()
	if err != nil {
		glog.Errorf("%s: %v", a.path, err)
		return -1
	}
	ret, err := a.env.Call(entry, arg)
	if err != nil {
		glog.Errorf("%s: entry point 0x%08x: %v", a.path, entry, err)
		ret = -1
	}
	if err := a.file.CallFini(); err != nil {
		glog.Errorf("%s: fini: %v", a.path, err)
	}
	return ret
}

// DebugInfo returns where the loaded image lives in memory.
func (a *App) DebugInfo() (api.DebugInfo, bool) {
	if !a.loaded || a.closed {
		return api.DebugInfo{}, false
	}
	return a.file.DebugInfo(), true
}

// Close waits for the application's thread to finish and releases the image.
// It may be called any number of times.
func (a *App) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	if a.thread != nil {
		ret := a.thread.Join()
		glog.V(1).Infof("%s: thread returned %d", a.path, ret)
	}
	if h, ok := a.env.(LastLoadedHolder); ok {
		h.ClearLastLoaded(a)
	}
	if a.file == nil {
		return nil
	}
	return a.file.Close()
}

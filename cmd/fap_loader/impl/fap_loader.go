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

// Package impl is the implementation of a tool which checks that application
// images load against a firmware's API.
//
// Each image is preloaded and mapped into an emulated RAM region, and a report
// of the outcome is printed. With a listen address the loaded images are kept
// in memory and their debug information is served until the tool is stopped.
package impl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/DarkFlippers/unleashed-firmware-sub041/api"
	"github.com/DarkFlippers/unleashed-firmware-sub041/application"
	fhttp "github.com/DarkFlippers/unleashed-firmware-sub041/cmd/fap_loader/internal/http"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/db"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/hostenv"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/memory"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/resolver"
	"github.com/DarkFlippers/unleashed-firmware-sub041/internal/storage"
)

// LoaderOpts encapsulates the loader tool parameters.
type LoaderOpts struct {
	// AppsDir is the directory image paths are relative to.
	AppsDir string
	// Ext4Image, if set, is an ext4 filesystem image to read images from
	// instead of AppsDir.
	Ext4Image string
	// Apps are the paths of the images to check.
	Apps []string

	// FirmwareELF and APISymbols are the firmware image and its exported API
	// table. They are used when DBDriver is empty.
	FirmwareELF string
	APISymbols  string
	// DBDriver and DBURI select an SQL database holding an imported API.
	DBDriver string
	DBURI    string

	// RAMBase and RAMSize describe the emulated region images are mapped to.
	RAMBase uint32
	RAMSize uint32
	// HardwareTarget is the target id of the emulated device.
	HardwareTarget uint16
	// Parallelism bounds how many images are checked at once.
	Parallelism int

	// Listen, if set, is the address debug information is served on.
	Listen string
	// Out receives the reports. Defaults to os.Stdout.
	Out io.Writer
}

// Main checks every image in opts.Apps and returns an error if any of them
// failed to load.
func Main(ctx context.Context, opts LoaderOpts) error {
	if len(opts.Apps) == 0 {
		return errors.New("no applications to load")
	}
	st, closeStorage, err := openStorage(opts)
	if err != nil {
		return err
	}
	defer closeStorage()

	r, closeResolver, err := openResolver(ctx, opts)
	if err != nil {
		return err
	}
	defer closeResolver()
	glog.Infof("Linking against API %s", r.Version())

	region, err := memory.NewRegion(opts.RAMBase, opts.RAMSize)
	if err != nil {
		return fmt.Errorf("invalid RAM region: %w", err)
	}

	c := newChecker(st, r, region, opts)
	defer c.close()
	if err := c.checkAll(ctx, opts.Apps); err != nil {
		return err
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if err := printReports(out, c.Reports()); err != nil {
		return err
	}

	if opts.Listen != "" {
		if err := serve(ctx, opts.Listen, c); err != nil {
			return err
		}
	}

	if n := c.failures(); n > 0 {
		return fmt.Errorf("%d of %d applications failed to load", n, len(opts.Apps))
	}
	return nil
}

func openStorage(opts LoaderOpts) (storage.Storage, func(), error) {
	switch {
	case opts.Ext4Image != "":
		img, err := storage.OpenExt4Image(opts.Ext4Image)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open ext4 image: %w", err)
		}
		return img, func() {
			if err := img.Close(); err != nil {
				glog.Warningf("Close(): %v", err)
			}
		}, nil
	case opts.AppsDir != "":
		d, err := storage.NewDir(opts.AppsDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open apps dir: %w", err)
		}
		return d, func() {}, nil
	default:
		return nil, nil, errors.New("one of apps_dir or ext4_image is required")
	}
}

// openResolver builds the API applications link against. With both a
// firmware image and a database, the database extends the firmware's API.
func openResolver(ctx context.Context, opts LoaderOpts) (api.Resolver, func(), error) {
	var fw, ext *resolver.HashTable
	closeDB := func() {}
	if opts.DBDriver != "" {
		d, err := db.Open(ctx, opts.DBDriver, opts.DBURI)
		if err != nil {
			return nil, nil, err
		}
		closeDB = func() { d.Close() }
		s, err := resolver.NewSQL(d)
		if err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("failed to init API tables: %w", err)
		}
		// Loading resolves the same names many times over.
		if ext, err = s.Snapshot(ctx); err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("failed to read API: %w", err)
		}
		glog.Infof("Read %d API symbols from %s DB", ext.Len(), opts.DBDriver)
	}

	if opts.FirmwareELF != "" || opts.APISymbols != "" {
		var err error
		if fw, err = readFirmware(opts.FirmwareELF, opts.APISymbols); err != nil {
			closeDB()
			return nil, nil, err
		}
	}

	switch {
	case fw != nil && ext != nil:
		return resolver.NewComposite(fw, ext), closeDB, nil
	case fw != nil:
		return fw, closeDB, nil
	case ext != nil:
		return ext, closeDB, nil
	}
	return nil, nil, errors.New("either db_driver or both firmware_elf and api_symbols are required")
}

func readFirmware(elfPath, csvPath string) (*resolver.HashTable, error) {
	if elfPath == "" || csvPath == "" {
		return nil, errors.New("firmware_elf and api_symbols must be given together")
	}
	csvFile, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open API table: %w", err)
	}
	defer csvFile.Close()
	elfFile, err := os.Open(elfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open firmware: %w", err)
	}
	defer elfFile.Close()
	t, err := resolver.FromFirmware(csvFile, elfFile)
	if err != nil {
		return nil, err
	}
	glog.Infof("Read %d API symbols from %s", t.Len(), elfPath)
	return t, nil
}

// checker loads images and keeps the outcome. It implements the debug
// server's Source.
type checker struct {
	st     storage.Storage
	r      api.Resolver
	region *memory.Region
	env    *hostenv.Env
	opts   LoaderOpts

	mu      sync.Mutex
	reports map[string]api.Report
	apps    []*application.App
}

func newChecker(st storage.Storage, r api.Resolver, region *memory.Region, opts LoaderOpts) *checker {
	return &checker{
		st:      st,
		r:       r,
		region:  region,
		env:     hostenv.New(r.Version()),
		opts:    opts,
		reports: make(map[string]api.Report),
	}
}

func (c *checker) checkAll(ctx context.Context, paths []string) error {
	g, ctx := errgroup.WithContext(ctx)
	if c.opts.Parallelism > 0 {
		g.SetLimit(c.opts.Parallelism)
	}
	for _, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c.check(p)
			return nil
		})
	}
	return g.Wait()
}

// check loads the image at path and records a report for it. Loaded images
// stay mapped only if they are going to be served.
func (c *checker) check(path string) {
	start := time.Now()
	app := application.New(c.st, c.r, c.env, application.Options{
		Allocator:      c.region,
		HardwareTarget: c.opts.HardwareTarget,
	})
	rep := api.Report{Path: path}
	ps := app.Preload(path)
	rep.Preload = ps.String()
	if ps == api.PreloadSuccess {
		m := app.Manifest()
		rep.Name = m.AppName()
		rep.APIVersion = m.APIVersion.String()
		rep.StackSize = m.StackSize

		ls := app.MapToMemory()
		rep.Load = ls.String()
		rep.MissingImports = app.MissingImports()
		rep.Trampolines = app.TrampolineCount()
		if d, ok := app.DebugInfo(); ok {
			rep.Debug = &d
		}
	}
	glog.Infof("%s: preload %q, load %q in %v", path, rep.Preload, rep.Load, time.Since(start))

	keep := c.opts.Listen != "" && rep.Load == api.LoadSuccess.String()
	if !keep {
		if err := app.Close(); err != nil {
			glog.Warningf("%s: Close(): %v", path, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports[path] = rep
	if keep {
		c.apps = append(c.apps, app)
	}
}

func (c *checker) failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.reports {
		if r.Load != api.LoadSuccess.String() {
			n++
		}
	}
	return n
}

// Reports returns the reports in path order.
func (c *checker) Reports() []api.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	reps := make([]api.Report, 0, len(c.reports))
	for _, r := range c.reports {
		reps = append(reps, r)
	}
	sort.Slice(reps, func(i, j int) bool { return reps[i].Path < reps[j].Path })
	return reps
}

// LastLoaded returns the debug info of the image most recently mapped.
func (c *checker) LastLoaded() (api.DebugInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	app := c.env.LastLoaded()
	if app == nil {
		return api.DebugInfo{}, false
	}
	return app.DebugInfo()
}

func (c *checker) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, app := range c.apps {
		if err := app.Close(); err != nil {
			glog.Warningf("Close(): %v", err)
		}
	}
	c.apps = nil
}

func printReports(w io.Writer, reps []api.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reps); err != nil {
		return fmt.Errorf("failed to write reports: %w", err)
	}
	return nil
}

// serve serves the debug API on addr until ctx is done.
func serve(ctx context.Context, addr string, src fhttp.Source) error {
	r := mux.NewRouter()
	fhttp.NewServer(src).RegisterHandlers(r)
	srv := &http.Server{Addr: addr, Handler: r}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		glog.Infof("Serving debug info on %s", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

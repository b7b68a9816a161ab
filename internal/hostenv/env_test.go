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

package hostenv

import (
	"errors"
	"sync"
	"testing"

	"github.com/DarkFlippers/unleashed-firmware-sub041/api"
	"github.com/DarkFlippers/unleashed-firmware-sub041/application"
)

func TestExportAndCall(t *testing.T) {
	e := New(api.APIVersion{Major: 87})
	double := e.Export("double", func(arg uint32) int32 { return int32(arg * 2) })
	negate := e.Export("negate", func(arg uint32) int32 { return -int32(arg) })

	if double&1 != 1 {
		t.Errorf("exported function address %#x has no Thumb bit", double)
	}
	if double == negate {
		t.Errorf("two exports share address %#x", double)
	}
	if addr, ok := e.Resolve("double"); !ok || addr != double {
		t.Errorf("Resolve(double) = %#x, %v, want %#x, true", addr, ok, double)
	}
	if _, ok := e.Resolve("triple"); ok {
		t.Error("Resolve(triple) found an unexported function")
	}

	for _, test := range []struct {
		addr uint32
		arg  uint32
		want int32
	}{
		{addr: double, arg: 21, want: 42},
		{addr: double &^ 1, arg: 2, want: 4},
		{addr: negate, arg: 5, want: -5},
	} {
		got, err := e.Call(test.addr, test.arg)
		if err != nil {
			t.Errorf("Call(%#x): %v", test.addr, err)
			continue
		}
		if got != test.want {
			t.Errorf("Call(%#x, %d) = %d, want %d", test.addr, test.arg, got, test.want)
		}
	}
	if _, err := e.Call(0x20000001, 0); !errors.Is(err, ErrUnknownFunction) {
		t.Errorf("Call(unregistered) = %v, want ErrUnknownFunction", err)
	}

	e.Register(0x20000001, func(uint32) int32 { return 7 })
	if got, err := e.Call(0x20000000, 0); err != nil || got != 7 {
		t.Errorf("Call(registered) = %d, %v, want 7, nil", got, err)
	}

	e.ExportData("furi_hal_i2c_handle_external", 0x20000100)
	if addr, ok := e.Resolve("furi_hal_i2c_handle_external"); !ok || addr != 0x20000100 {
		t.Errorf("Resolve(variable) = %#x, %v, want 0x20000100, true", addr, ok)
	}
}

func TestSpawnJoin(t *testing.T) {
	e := New(api.APIVersion{})
	release := make(chan struct{})
	th := e.Spawn("worker", 2048, func() int32 {
		<-release
		e.Yield()
		return 99
	})

	var wg sync.WaitGroup
	results := make([]int32, 3)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = th.Join()
		}()
	}
	close(release)
	wg.Wait()
	for i, r := range results {
		if r != 99 {
			t.Errorf("Join() #%d = %d, want 99", i, r)
		}
	}
}

func TestLastLoaded(t *testing.T) {
	e := New(api.APIVersion{})
	if got := e.LastLoaded(); got != nil {
		t.Errorf("LastLoaded() = %v, want nil", got)
	}
	a := application.New(nil, e, e, application.Options{})
	e.SetLastLoaded(a)
	if got := e.LastLoaded(); got != a {
		t.Errorf("LastLoaded() = %p, want %p", got, a)
	}
	e.SetLastLoaded(nil)
	if got := e.LastLoaded(); got != nil {
		t.Errorf("LastLoaded() after clearing = %v, want nil", got)
	}
}

func TestClearLastLoaded(t *testing.T) {
	e := New(api.APIVersion{})
	older := application.New(nil, e, e, application.Options{})
	newer := application.New(nil, e, e, application.Options{})

	e.SetLastLoaded(newer)
	e.ClearLastLoaded(older)
	if got := e.LastLoaded(); got != newer {
		t.Errorf("LastLoaded() after clearing an older app = %p, want %p", got, newer)
	}
	e.ClearLastLoaded(newer)
	if got := e.LastLoaded(); got != nil {
		t.Errorf("LastLoaded() after clearing it = %p, want nil", got)
	}
}

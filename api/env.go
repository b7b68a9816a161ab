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

package api

// Thread is a running application thread.
type Thread interface {
	// Join blocks until the thread's body returns and yields its result.
	Join() int32
}

// Environment is the execution environment an application runs in.
type Environment interface {
	// Call runs the function at addr with one argument.
	Call(addr uint32, arg uint32) (int32, error)
	// Spawn starts body on a new thread with a stack of stackSize bytes.
	Spawn(name string, stackSize uint32, body func() int32) Thread
	// Yield lets other threads run.
	Yield()
}

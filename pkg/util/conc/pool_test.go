// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package conc

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/atomic"
)

func TestPoolSubmit(t *testing.T) {
	pool := NewPool[int](2, WithName("test"))
	defer pool.Release()

	var calls atomic.Int32
	futures := make([]*Future[int], 0, 8)
	for i := 0; i < 8; i++ {
		i := i
		futures = append(futures, pool.Submit(func() (int, error) {
			calls.Inc()
			return i * 2, nil
		}))
	}

	assert.NoError(t, AwaitAll(futures...))
	for i, f := range futures {
		assert.Equal(t, i*2, f.Value())
	}
	assert.Equal(t, int32(8), calls.Load())
	assert.Equal(t, 2, pool.Cap())
}

func TestPoolSubmitError(t *testing.T) {
	pool := NewDefaultPool[struct{}](WithPreHandler(func() {}))
	defer pool.Release()

	errBoom := errors.New("boom")
	f := pool.Submit(func() (struct{}, error) {
		return struct{}{}, errBoom
	})
	_, err := f.Await()
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, AwaitAll(f), errBoom)
	<-f.Done()
}

func TestPoolReleased(t *testing.T) {
	pool := NewPool[int](1)
	pool.Release()

	f := pool.Submit(func() (int, error) { return 1, nil })
	assert.Error(t, f.Err())
}

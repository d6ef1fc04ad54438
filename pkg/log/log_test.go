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

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type bufferSyncer struct {
	bytes.Buffer
}

func (b *bufferSyncer) Sync() error { return nil }

func TestJSONFormatWithFields(t *testing.T) {
	out := &bufferSyncer{}
	lg, props, err := InitLoggerWithWriteSyncer(&Config{Level: "info", Format: "json", DisableTimestamp: true}, out)
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, props.Level.Level())

	lg.With(FieldHandle(42)).Info("client opened", FieldAddress("https://example.com"), FieldMethod("openclient"))
	lg.Debug("suppressed")

	line := strings.TrimSpace(out.String())
	require.NotEmpty(t, line)
	assert.NotContains(t, line, "suppressed")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	assert.Equal(t, "client opened", decoded["message"])
	assert.Equal(t, float64(42), decoded[FieldNameHandle])
	assert.Equal(t, "https://example.com", decoded[FieldNameAddress])
	assert.Equal(t, "openclient", decoded[FieldNameMethod])
	assert.NotContains(t, decoded, "time")
}

func TestConsoleFormat(t *testing.T) {
	out := &bufferSyncer{}
	lg, _, err := InitLoggerWithWriteSyncer(&Config{Level: "debug", Format: "console"}, out)
	require.NoError(t, err)

	lg.Debug("device opened", FieldDevice("A1B2"))
	assert.Contains(t, out.String(), "device opened")
	assert.Contains(t, out.String(), "A1B2")
}

func TestInvalidLevel(t *testing.T) {
	_, _, err := InitLoggerWithWriteSyncer(&Config{Level: "loud"}, &bufferSyncer{})
	assert.Error(t, err)
}

func TestInitLoggerTraceLevelAndFile(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{Level: "trace", Format: "json", File: FileLogConfig{RootPath: dir, Filename: "bridge.log"}}
	lg, props, err := InitLogger(cfg)
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, props.Level.Level())

	lg.Info("written to file")
	require.NoError(t, lg.Sync())

	data, err := os.ReadFile(filepath.Join(dir, "bridge.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	Cleanup()
}

func TestInitLoggerRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "logs"), 0o755))
	_, _, err := InitLogger(&Config{Level: "info", File: FileLogConfig{RootPath: dir, Filename: "logs"}})
	assert.Error(t, err)
}

func TestCtxFields(t *testing.T) {
	out := &bufferSyncer{}
	lg, props, err := InitLoggerWithWriteSyncer(&Config{Level: "debug", Format: "json"}, out)
	require.NoError(t, err)

	oldL, oldP := L(), _globalP.Load().(*ZapProperties)
	ReplaceGlobals(lg, props)
	replaceLeveledLoggers(lg)
	defer func() {
		ReplaceGlobals(oldL, oldP)
		replaceLeveledLoggers(oldL)
	}()

	ctx := WithFields(context.Background(), FieldHandle(7))
	ctx = WithFields(ctx, FieldMethod("close"))
	Ctx(ctx).Info("dispatch")

	assert.Contains(t, out.String(), `"handle":7`)
	assert.Contains(t, out.String(), `"method":"close"`)

	// 未携带 Logger 的 ctx 退回到全局 Logger。
	Ctx(context.Background()).With(zap.String("k", "v")).Info("plain")
	assert.Contains(t, out.String(), `"k":"v"`)
}

func TestRateGroup(t *testing.T) {
	out := &bufferSyncer{}
	lg, _, err := InitLoggerWithWriteSyncer(&Config{Level: "debug", Format: "json"}, out)
	require.NoError(t, err)

	// 额度不恢复，余额只够一条。
	l := (&MLogger{Logger: lg}).WithRateGroup("log-test", 0, 1)
	assert.True(t, l.RatedDebug(1, "first"))
	assert.False(t, l.RatedDebug(1, "second"))

	// 子 Logger 与同名分组共享额度。
	assert.False(t, l.With(FieldComponent("child")).RatedWarn(1, "child"))
	other := (&MLogger{Logger: lg}).WithRateGroup("log-test", 0, 1)
	assert.False(t, other.RatedWarn(1, "other"))

	assert.Contains(t, out.String(), "first")
	assert.NotContains(t, out.String(), "second")
	assert.NotContains(t, out.String(), "child")

	// 未绑定分组时使用全局限流器，默认不限流。
	plain := &MLogger{Logger: lg}
	assert.True(t, plain.RatedWarn(100, "unlimited"))
	assert.Contains(t, out.String(), "unlimited")
}

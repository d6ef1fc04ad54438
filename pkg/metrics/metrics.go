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

package metrics

import (
	// #nosec
	_ "net/http/pprof"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// bridgeNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	bridgeNamespace = "capture_bridge"

	// 以下为当前使用的通用标签名。
	methodLabelName  = "method"
	channelLabelName = "channel"
	outcomeLabelName = "outcome"
	codeLabelName    = "code"
	eventLabelName   = "event"
	reasonLabelName  = "reason"
	kindLabelName    = "kind"

	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeNoTarget  = "no_target"
)

var (
	// buckets 为消息分发耗时直方图的桶划分，单位为毫秒。
	// [0.125 0.25 0.5 1 2 4 8 16 32 64 128 256 512 1024]
	buckets = prometheus.ExponentialBuckets(0.125, 2, 14)

	InboundMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: bridgeNamespace,
			Name:      "inbound_messages_total",
			Help:      "number of JSON-RPC messages received from pages, by method",
		}, []string{methodLabelName})

	OutboundMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: bridgeNamespace,
			Name:      "outbound_messages_total",
			Help:      "number of replies and notifications sent to pages",
		}, []string{channelLabelName, outcomeLabelName})

	ErrorReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: bridgeNamespace,
			Name:      "error_replies_total",
			Help:      "number of JSON-RPC error responses, by error code",
		}, []string{codeLabelName})

	RelayedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: bridgeNamespace,
			Name:      "relayed_events_total",
			Help:      "number of device events forwarded to the active client",
		}, []string{eventLabelName})

	DroppedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: bridgeNamespace,
			Name:      "dropped_events_total",
			Help:      "number of device events not forwarded, by reason",
		}, []string{eventLabelName, reasonLabelName})

	ClientSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: bridgeNamespace,
			Name:      "client_sessions",
			Help:      "number of open client sessions",
		})

	OpenDevices = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: bridgeNamespace,
			Name:      "open_devices",
			Help:      "number of device sessions held by client sessions",
		})

	DispatchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: bridgeNamespace,
			Name:      "dispatch_latency_milliseconds",
			Help:      "time spent dispatching one inbound message",
			Buckets:   buckets,
		}, []string{methodLabelName})

	InvariantViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: bridgeNamespace,
			Name:      "invariant_violations_total",
			Help:      "number of detected session invariant violations",
		}, []string{kindLabelName})

	registerOnce     sync.Once
	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标，重复调用只有第一次生效。
func Register(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(InboundMessages)
		r.MustRegister(OutboundMessages)
		r.MustRegister(ErrorReplies)
		r.MustRegister(RelayedEvents)
		r.MustRegister(DroppedEvents)
		r.MustRegister(ClientSessions)
		r.MustRegister(OpenDevices)
		r.MustRegister(DispatchLatency)
		r.MustRegister(InvariantViolations)
		registerTransportMetrics(r)
		metricRegisterer = r
	})
}

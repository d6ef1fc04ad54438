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
	"github.com/prometheus/client_golang/prometheus"
)

const (
	transportMetricSubsystem = "transport"
)

var (
	TransportConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: bridgeNamespace,
		Subsystem: transportMetricSubsystem,
		Name:      "connections",
		Help:      "当前已建立的 WebSocket 页面连接数",
	})

	TransportPendingFrames = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: bridgeNamespace,
		Subsystem: transportMetricSubsystem,
		Name:      "pending_frames",
		Help:      "所有连接发送队列中待写出的帧数量",
	})

	TransportDroppedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: bridgeNamespace,
		Subsystem: transportMetricSubsystem,
		Name:      "dropped_frames_total",
		Help:      "由于发送队列已满或连接已关闭而被丢弃的帧数量",
	})

	TransportErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: bridgeNamespace,
		Subsystem: transportMetricSubsystem,
		Name:      "errors_total",
		Help:      "按处理阶段统计的传输层错误次数",
	}, []string{"stage"})

	DeviceLayerRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: bridgeNamespace,
		Subsystem: "device_layer",
		Name:      "requests_total",
		Help:      "发往设备层的属性请求数量，按结果分类",
	}, []string{outcomeLabelName})
)

func registerTransportMetrics(r prometheus.Registerer) {
	r.MustRegister(TransportConnections)
	r.MustRegister(TransportPendingFrames)
	r.MustRegister(TransportDroppedFrames)
	r.MustRegister(TransportErrors)
	r.MustRegister(DeviceLayerRequests)
}

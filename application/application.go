package application

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/capture-bridge-go/internal/bridge"
	"github.com/lk2023060901/capture-bridge-go/internal/capture"
	"github.com/lk2023060901/capture-bridge-go/internal/capture/mqttlayer"
	"github.com/lk2023060901/capture-bridge-go/internal/capture/sim"
	"github.com/lk2023060901/capture-bridge-go/internal/transport"
	zlog "github.com/lk2023060901/capture-bridge-go/pkg/log"
	"github.com/lk2023060901/capture-bridge-go/pkg/metrics"
	zviper "github.com/lk2023060901/capture-bridge-go/pkg/util/viper"
)

const defaultConfigPath = "./config.yaml"

// Application 是桥接服务的运行时容器，持有配置并管理各组件的生命周期。
type Application struct {
	cfg      *zviper.Config
	conf     Config
	layer    capture.Layer
	sim      *sim.Layer
	bridge   *bridge.Bridge
	acceptor *transport.Acceptor
	engine   *gin.Engine
}

func New() *Application {
	return &Application{}
}

// Run 是桥接服务的入口，阻塞直到 ctx 结束或某个组件失败。
//
// 配置文件路径优先级（后者覆盖前者）：
//  1. 默认：./config.yaml（不存在时只使用默认值与环境变量）
//  2. 环境变量：BRIDGE_CONFIG_FILE_PATH
//  3. 命令行：--config <path> 或 --config=<path>
func (a *Application) Run(ctx context.Context) error {
	if err := a.Init(os.Args[1:]); err != nil {
		return err
	}
	return a.Serve(ctx)
}

// Init 加载配置、初始化日志并构建各组件，但不监听端口。
func (a *Application) Init(args []string) error {
	cfg, err := a.loadConfig(args)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if err := cfg.Unmarshal(&a.conf); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	if err := a.initLogging(); err != nil {
		return err
	}

	layer, err := a.buildLayer()
	if err != nil {
		return err
	}
	a.layer = layer

	b, err := bridge.New(a.conf.Bridge, layer)
	if err != nil {
		return err
	}
	a.bridge = b
	a.acceptor = transport.NewAcceptor(a.conf.Transport, b.PageHandler())
	a.observe()
	a.engine = a.buildEngine()
	return nil
}

// Config 返回已加载的配置。
func (a *Application) Config() Config {
	return a.conf
}

// Handler 返回 HTTP 入口，Init 之后有效。
func (a *Application) Handler() http.Handler {
	return a.engine
}

// Serve 启动桥接与 HTTP 服务。ctx 结束后依次关闭 HTTP、页面连接和桥接。
func (a *Application) Serve(ctx context.Context) error {
	logger := zlog.With(zlog.FieldComponent("application"))
	if err := a.bridge.Start(ctx); err != nil {
		return err
	}
	if a.sim != nil {
		a.sim.AddDevice(capture.DeviceInfo{GUID: uuid.NewString(), Name: "Simulated Scanner", Type: 0x00010001})
	}

	server := &http.Server{
		Addr:              a.conf.HTTP.Listen,
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("listen", server.Addr), zap.String("layer", a.conf.Layer))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.conf.HTTP.ShutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		_ = a.acceptor.Close()
		if stopErr := a.bridge.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
		logger.Info("application stopped")
		return err
	})
	return g.Wait()
}

// buildLayer 按配置构建设备层。
func (a *Application) buildLayer() (capture.Layer, error) {
	switch strings.ToLower(a.conf.Layer) {
	case "", LayerSim:
		// 模拟设备层接受任何字段齐全的凭据，未配置时补一组演示凭据。
		if !a.conf.Bridge.AppInfo.Complete() {
			a.conf.Bridge.AppInfo = capture.AppInfo{AppID: "sim-app", AppKey: "sim-key", DeveloperID: "sim-developer"}
		}
		l := sim.New()
		a.sim = l
		return l, nil
	case LayerMQTT:
		return mqttlayer.New(a.conf.MQTT)
	default:
		return nil, fmt.Errorf("unknown device layer %q", a.conf.Layer)
	}
}

// observe 把宿主事件接入日志。
func (a *Application) observe() {
	logger := zlog.With(zlog.FieldComponent("host"))
	obs := a.bridge.Observers()
	obs.ClientOpened.Subscribe(func(e bridge.ClientEvent) {
		logger.Info("client opened", zlog.FieldHandle(e.Handle), zlog.FieldAddress(e.Address))
	})
	obs.ClientClosed.Subscribe(func(e bridge.ClientEvent) {
		logger.Info("client closed", zlog.FieldHandle(e.Handle), zlog.FieldAddress(e.Address))
	})
	obs.DeviceArrival.Subscribe(func(info capture.DeviceInfo) {
		logger.Info("device arrived", zlog.FieldDevice(info.GUID), zap.String("name", info.Name))
	})
	obs.DeviceRemoval.Subscribe(func(info capture.DeviceInfo) {
		logger.Info("device removed", zlog.FieldDevice(info.GUID), zap.String("name", info.Name))
	})
	obs.UnhandledMessage.Subscribe(func(m bridge.UnhandledMessage) {
		logger.RatedWarn(10, "unhandled page message", zlog.FieldAddress(m.Address), zap.String("channel", m.Channel))
	})
}

// buildEngine 注册 HTTP 路由：页面 WebSocket、指标、会话列表与健康检查。
func (a *Application) buildEngine() *gin.Engine {
	if zlog.GetLevel() > zap.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), accessLog())

	engine.GET(a.conf.Transport.Path, gin.WrapH(a.acceptor))

	if a.conf.Metrics.Enabled {
		metrics.Register(prometheus.DefaultRegisterer)
		engine.GET(a.conf.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "layer": a.conf.Layer})
	})

	engine.GET("/sessions", func(c *gin.Context) {
		sessions, err := a.bridge.Sessions(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	})

	if a.sim != nil {
		engine.POST("/sim/scan", a.simScan)
	}
	return engine
}

type scanRequest struct {
	GUID     string `json:"guid"`
	Data     string `json:"data" binding:"required"`
	SourceID int    `json:"sourceId"`
	Source   string `json:"sourceName"`
}

// simScan 让模拟设备产生一次扫码，GUID 缺省时使用第一台设备。
func (a *Application) simScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.GUID == "" {
		devices := a.sim.Devices()
		if len(devices) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "no simulated device"})
			return
		}
		req.GUID = devices[0].Info().GUID
	}
	if _, ok := capture.FindDevice(a.sim, req.GUID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown device " + req.GUID})
		return
	}
	a.sim.Scan(req.GUID, []byte(req.Data), capture.DataSourceID(req.SourceID), req.Source)
	c.JSON(http.StatusAccepted, gin.H{"guid": req.GUID})
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zlog.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// loadConfig 解析配置文件路径并通过 viper 封装加载。
// 显式指定的文件必须存在；默认路径的文件缺失时只使用默认值与环境变量。
func (a *Application) loadConfig(args []string) (*zviper.Config, error) {
	configPath := defaultConfigPath
	explicit := false

	if envPath := os.Getenv(EnvPrefix + "_CONFIG_FILE_PATH"); envPath != "" {
		configPath = envPath
		explicit = true
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value after --config")
			}
			configPath = args[i+1]
			explicit = true
			i++
			continue
		}
		if val, ok := strings.CutPrefix(arg, "--config="); ok && val != "" {
			configPath = val
			explicit = true
		}
	}

	cfg := zviper.New()
	cfg.BindEnv(EnvPrefix)
	setDefaults(cfg)

	if _, err := os.Stat(configPath); err != nil && !explicit {
		return cfg, nil
	}
	if err := cfg.LoadFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file %q: %w", configPath, err)
	}
	return cfg, nil
}

// initLogging 以配置文件 log 段为基础初始化全局日志，BRIDGE_LOG_* 环境变量可覆盖。
//
//   - BRIDGE_LOG_LEVEL: 日志级别。
//   - BRIDGE_LOG_STDOUT: 是否输出到标准输出。
//   - BRIDGE_LOG_FILE_DIR / BRIDGE_LOG_FILE: 文件日志目录与文件名（空文件名表示不写文件）。
//   - BRIDGE_LOG_FORMAT: text 或 json。
func (a *Application) initLogging() error {
	cfg := a.conf.Log
	cfg.Level = getenvDefault(EnvPrefix+"_LOG_LEVEL", cfg.Level)
	cfg.Format = getenvDefault(EnvPrefix+"_LOG_FORMAT", cfg.Format)
	cfg.Stdout = getenvBool(EnvPrefix+"_LOG_STDOUT", cfg.Stdout)
	cfg.File.RootPath = getenvDefault(EnvPrefix+"_LOG_FILE_DIR", cfg.File.RootPath)
	cfg.File.Filename = getenvDefault(EnvPrefix+"_LOG_FILE", cfg.File.Filename)

	logger, props, err := zlog.InitLogger(&cfg)
	if err != nil {
		return fmt.Errorf("init global logger: %w", err)
	}
	zlog.ReplaceGlobals(logger, props)
	a.conf.Log = cfg
	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

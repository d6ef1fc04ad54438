package sim

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/capture-bridge-go/internal/capture"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/merr"
)

type recorder struct {
	mu     sync.Mutex
	events []capture.Event
}

func (r *recorder) OnEvent(e capture.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []capture.EventID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]capture.EventID, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type SimSuite struct {
	suite.Suite
	layer *Layer
	rec   *recorder
}

func (s *SimSuite) SetupTest() {
	s.layer = New()
	s.rec = &recorder{}
	s.layer.PushSubscriber(s.rec)
}

func (s *SimSuite) TearDownTest() {
	s.NoError(s.layer.Close())
}

func (s *SimSuite) TestOpenFailuresThenSuccess() {
	l := New(WithSynchronous(), WithOpenFailures(2))
	app := capture.AppInfo{AppID: "a", AppKey: "k", DeveloperID: "d"}

	s.ErrorIs(l.Open(context.Background(), app), merr.ErrDeviceLayerUnavailable)
	s.ErrorIs(l.Open(context.Background(), app), merr.ErrDeviceLayerUnavailable)
	s.NoError(l.Open(context.Background(), app))
	s.Equal(3, l.OpenCalls())
}

func (s *SimSuite) TestVerifyAppInfo() {
	good := capture.AppInfo{AppID: "ios:com.example", AppKey: "key", DeveloperID: "dev"}
	l := New(WithSynchronous(), WithCredentials(good))
	s.True(l.VerifyAppInfo(good))
	s.False(l.VerifyAppInfo(capture.AppInfo{AppID: "x", AppKey: "y", DeveloperID: "z"}))
	s.ErrorIs(l.Open(context.Background(), capture.AppInfo{AppID: "x"}), merr.ErrInvalidAppInfo)
}

func (s *SimSuite) TestPresenceEvents() {
	s.layer.AddDeviceManager(capture.DeviceInfo{GUID: "M1", Name: "NFC manager"})
	s.layer.AddDevice(capture.DeviceInfo{GUID: "G1", Name: "S740"})
	s.Len(s.layer.Devices(), 1)
	s.Len(s.layer.DeviceManagers(), 1)
	s.Len(capture.AllDevices(s.layer), 2)

	d, ok := capture.FindDevice(s.layer, "M1")
	s.True(ok)
	s.Equal("NFC manager", d.Info().Name)

	s.True(s.layer.RemoveDevice("G1"))
	s.True(s.layer.RemoveDevice("M1"))
	s.False(s.layer.RemoveDevice("G1"))

	s.Equal([]capture.EventID{
		capture.EventDeviceManagerArrival,
		capture.EventDeviceArrival,
		capture.EventDeviceRemoval,
		capture.EventDeviceManagerRemoval,
	}, s.rec.kinds())
}

func (s *SimSuite) TestSilentChanges() {
	s.layer.AttachSilently(capture.DeviceInfo{GUID: "G2"})
	s.True(s.layer.DetachSilently("G2"))
	s.False(s.layer.DetachSilently("G2"))
	s.Empty(s.rec.kinds())
}

func (s *SimSuite) TestAsyncPropertyCallbacks() {
	dev := s.layer.AddDevice(capture.DeviceInfo{GUID: "G1"})

	var (
		mu      sync.Mutex
		results []capture.Result
	)
	record := func(r capture.Result, _ *capture.Property) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	}

	dev.SetProperty(capture.StringProperty(5, "friendly"), record)
	s.layer.Wait()
	dev.GetProperty(capture.Property{ID: 5}, record)
	dev.GetProperty(capture.Property{ID: 6}, record)
	dev.FailNext(capture.ResultTimeout)
	dev.GetProperty(capture.Property{ID: 5}, record)
	s.layer.GetProperty(capture.Property{ID: capture.PropertyIDVersion}, record)
	s.layer.Wait()

	mu.Lock()
	defer mu.Unlock()
	s.Len(results, 5)
	s.Equal(capture.ResultNoError, results[0])
	s.ElementsMatch([]capture.Result{
		capture.ResultNoError, capture.ResultNoError, capture.ResultNotSupported,
		capture.ResultTimeout, capture.ResultNoError,
	}, results)
}

func (s *SimSuite) TestDataEvents() {
	s.layer.AddDevice(capture.DeviceInfo{GUID: "G1", Name: "S740"})
	s.layer.Scan("G1", []byte("hello"), capture.DataSourceIDQRCode, "QR Code")
	s.layer.ScanResult("G1", capture.ResultCanceled)
	s.layer.SetBattery("G1", 80)
	s.layer.SetPower("G1", 2)
	s.layer.SetButtons("G1", 1)
	s.layer.Error(capture.ResultFailed)

	s.rec.mu.Lock()
	defer s.rec.mu.Unlock()
	s.Len(s.rec.events, 7)
	scan := s.rec.events[1]
	s.Equal("S740", scan.Device.Name)
	s.Equal([]byte("hello"), scan.Data.Data)
	s.Equal(capture.ResultCanceled, s.rec.events[2].Result)
	s.Equal(80, s.rec.events[3].Value)
	s.Equal(capture.EventError, s.rec.events[6].Kind)
}

func TestSim(t *testing.T) {
	suite.Run(t, new(SimSuite))
}

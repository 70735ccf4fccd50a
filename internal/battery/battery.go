package battery

import (
	"context"
	"errors"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"diaryface/internal/model"
)

// ErrUnsupported is returned by the I2C reader off Linux.
var ErrUnsupported = errors.New("battery: i2c reader unavailable on this platform")

// Status is one battery reading.
type Status struct {
	Percent   int  `json:"percent"`
	VoltageMv int  `json:"voltage_mv"`
	Charging  bool `json:"charging"`
}

// Model converts a reading into the device's compact status.
func (s Status) Model() model.BatteryStatus {
	p := s.Percent
	switch {
	case p < 0:
		p = 0
	case p > 100:
		p = 100
	}
	state := model.BatteryDischarging
	if s.Charging {
		state = model.BatteryCharging
		if p == 100 {
			state = model.BatteryPlugged
		}
	}
	return model.BatteryStatus{State: state, Level: int8(p)}
}

// Reader obtains battery readings.
type Reader interface {
	Read(ctx context.Context) (Status, error)
}

// mockReader drifts slowly between 20% and 100% for development hosts.
type mockReader struct {
	mu  sync.Mutex
	rnd *rand.Rand
	pct int
}

// NewMockReader returns a Reader that simulates a draining battery.
func NewMockReader() Reader {
	return &mockReader{rnd: rand.New(rand.NewSource(time.Now().UnixNano())), pct: 100}
}

func (m *mockReader) Read(_ context.Context) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pct -= m.rnd.Intn(3)
	if m.pct < 20 {
		m.pct = 100
	}
	return Status{Percent: m.pct}, nil
}

// StaticReader always returns the same reading.
type StaticReader Status

func (s StaticReader) Read(context.Context) (Status, error) { return Status(s), nil }

// PiSugar3 registers.
const (
	regPower      = 0x02 // bit 7: external power connected
	regVoltHigh   = 0x22
	regVoltLow    = 0x23
	regPercentage = 0x2A
)

// i2cReader talks to a PiSugar3 controller over I2C.
type i2cReader struct {
	busName string
	addr    uint16

	initOnce sync.Once
	initErr  error
}

// NewI2CReader returns a Reader for the controller at addr on busName. An
// empty busName picks the default bus. The bus is opened on every Read.
func NewI2CReader(busName string, addr uint16) Reader {
	return &i2cReader{busName: busName, addr: addr}
}

func (r *i2cReader) Read(_ context.Context) (Status, error) {
	if runtime.GOOS != "linux" {
		return Status{}, ErrUnsupported
	}
	r.initOnce.Do(func() { _, r.initErr = host.Init() })
	if r.initErr != nil {
		return Status{}, r.initErr
	}

	bus, err := i2creg.Open(r.busName)
	if err != nil {
		return Status{}, err
	}
	defer bus.Close()

	dev := &i2c.Dev{Bus: bus, Addr: r.addr}
	readReg := func(reg byte) (byte, error) {
		buf := []byte{0}
		if err := dev.Tx([]byte{reg}, buf); err != nil {
			return 0, err
		}
		return buf[0], nil
	}

	high, err := readReg(regVoltHigh)
	if err != nil {
		return Status{}, err
	}
	low, err := readReg(regVoltLow)
	if err != nil {
		return Status{}, err
	}
	pct, err := readReg(regPercentage)
	if err != nil {
		return Status{}, err
	}
	power, err := readReg(regPower)
	if err != nil {
		return Status{}, err
	}
	if pct > 100 {
		pct = 100
	}
	return Status{
		Percent:   int(pct),
		VoltageMv: int(uint16(high)<<8 | uint16(low)),
		Charging:  power&0x80 != 0,
	}, nil
}

// DefaultAddr is the PiSugar3 I2C address.
const DefaultAddr = 0x57

// DefaultReader checks for the PiSugar3 once and falls back to the mock reader
// when no controller answers.
func DefaultReader() Reader {
	if runtime.GOOS != "linux" {
		return NewMockReader()
	}
	r := NewI2CReader("", DefaultAddr)
	if _, err := r.Read(context.Background()); err != nil {
		return NewMockReader()
	}
	return r
}

// Cache serves the last reading for up to ttl before asking r again.
type Cache struct {
	r   Reader
	ttl time.Duration

	mu   sync.Mutex
	last Status
	at   time.Time
	err  error
}

func NewCache(r Reader, ttl time.Duration) *Cache {
	return &Cache{r: r, ttl: ttl}
}

// Read returns the cached reading while it is fresh.
func (c *Cache) Read(ctx context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.at.IsZero() && time.Since(c.at) < c.ttl {
		return c.last, c.err
	}
	c.last, c.err = c.r.Read(ctx)
	c.at = time.Now()
	return c.last, c.err
}

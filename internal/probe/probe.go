// Package probe checks array controller reachability over SNMP.
//
// The probe is an optional sidecar: one SNMP v2c GET of sysUpTime and
// sysDescr per controller address, emitted as array_probe points. An
// unreachable controller is health data, not an error, so failures surface
// as reachable=false points and debug logs rather than cycle errors.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/xtxerr/arraymon/config"
	"github.com/xtxerr/arraymon/internal/constants"
	"github.com/xtxerr/arraymon/internal/logging"
	"github.com/xtxerr/arraymon/internal/series"
)

var log = logging.Component("probe")

// MIB-2 system group objects.
const (
	oidSysDescr  = ".1.3.6.1.2.1.1.1.0"
	oidSysUpTime = ".1.3.6.1.2.1.1.3.0"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds SNMP v2c probe settings.
type Config struct {
	Community string
	Port      int
	Timeout   time.Duration
	Retries   int
}

// DefaultConfig returns the production probe settings.
func DefaultConfig() Config {
	return Config{
		Community: config.DefaultProbeCommunity,
		Port:      config.DefaultProbePort,
		Timeout:   config.DefaultProbeTimeout,
		Retries:   config.DefaultProbeRetries,
	}
}

// =============================================================================
// Prober
// =============================================================================

// Prober performs reachability checks against controller addresses.
type Prober struct {
	cfg Config
}

// New creates a prober, filling unset config fields from the defaults.
func New(cfg Config) *Prober {
	def := DefaultConfig()
	if cfg.Community == "" {
		cfg.Community = def.Community
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		cfg.Port = def.Port
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = def.Retries
	}
	return &Prober{cfg: cfg}
}

// Probe queries every controller address and returns one array_probe point
// per controller. It only returns an error on context cancellation; probe
// failures become unreachable points.
func (p *Prober) Probe(ctx context.Context, sysID, sysName string, controllers []string) (*series.Batch, error) {
	batch := series.NewBatch(len(controllers))

	for _, addr := range controllers {
		select {
		case <-ctx.Done():
			return batch, ctx.Err()
		default:
		}
		batch.Add(p.probeController(sysID, sysName, addr))
	}

	return batch, nil
}

func (p *Prober) probeController(sysID, sysName, addr string) series.Point {
	point := series.New(constants.MeasurementProbe, time.Now())
	point.AddTag("sys_id", sysID)
	point.AddTag("sys_name", sysName)
	point.AddTag("controller", addr)

	uptimeSec, descr, rtt, err := p.query(addr)
	if err != nil {
		log.Debug("controller unreachable",
			"system", sysID,
			"controller", addr,
			"error", err)
		point.SetField("reachable", series.Bool(false))
		point.SetField("uptime_seconds", series.Absent())
		point.SetField("rtt_ms", series.Absent())
		point.SetField("descr", series.Absent())
		return point
	}

	point.SetField("reachable", series.Bool(true))
	point.SetField("uptime_seconds", series.Float(uptimeSec))
	point.SetField("rtt_ms", series.Float(float64(rtt.Microseconds())/1000.0))
	point.SetField("descr", series.String(descr))
	return point
}

// query performs one GET for both system objects and measures the round
// trip.
func (p *Prober) query(addr string) (uptimeSec float64, descr string, rtt time.Duration, err error) {
	client := &gosnmp.GoSNMP{
		Target:    addr,
		Port:      uint16(p.cfg.Port),
		Community: p.cfg.Community,
		Version:   gosnmp.Version2c,
		Timeout:   p.cfg.Timeout,
		Retries:   p.cfg.Retries,
	}

	if err := client.Connect(); err != nil {
		return 0, "", 0, fmt.Errorf("connect: %w", err)
	}
	defer client.Conn.Close()

	start := time.Now()
	pdu, err := client.Get([]string{oidSysUpTime, oidSysDescr})
	rtt = time.Since(start)
	if err != nil {
		return 0, "", rtt, fmt.Errorf("get: %w", err)
	}

	for _, v := range pdu.Variables {
		switch v.Name {
		case oidSysUpTime:
			// TimeTicks are hundredths of a second.
			if v.Type == gosnmp.TimeTicks {
				uptimeSec = float64(gosnmp.ToBigInt(v.Value).Uint64()) / 100
			}
		case oidSysDescr:
			if b, ok := v.Value.([]byte); ok {
				descr = string(b)
			}
		}
	}

	return uptimeSec, descr, rtt, nil
}

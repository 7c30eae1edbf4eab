package parsers

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/geodesy"
	"github.com/example/sfg/internal/core/rows"
)

type sv3Time struct {
	Common float64 `json:"common"`
}

// sv3Nav covers the NOV_INS, GNSS and AHRS observation blocks.
type sv3Nav struct {
	Time      sv3Time  `json:"time"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	HAE       float64  `json:"hae"`
	Roll      float64  `json:"r"`
	Pitch     float64  `json:"p"`
	Head      float64  `json:"h"`
	SDX       *float64 `json:"sdx"`
	SDY       *float64 `json:"sdy"`
	SDZ       *float64 `json:"sdz"`
}

type sv3Observations struct {
	NovIns json.RawMessage `json:"NOV_INS"`
	GNSS   json.RawMessage `json:"GNSS"`
	AHRS   json.RawMessage `json:"AHRS"`
}

type sv3Range struct {
	CN    string  `json:"cn"`
	Range float64 `json:"range"`
	TAT   float64 `json:"tat"`
	Diag  struct {
		XC  []float64 `json:"xc"`
		DBV []float64 `json:"dbv"`
		SNR []float64 `json:"snr"`
	} `json:"diag"`
}

type sv3Event struct {
	Event        string          `json:"event"`
	Time         sv3Time         `json:"time"`
	Observations sv3Observations `json:"observations"`
	Range        *sv3Range       `json:"range"`
}

type pose struct {
	head, pitch, roll   float64
	east, north, up     float64
	sdx, sdy, sdz       *float64
	latitude, longitude float64
}

// decodeNav returns nil for absent or error-coded ("ERR3") blocks.
func decodeNav(raw json.RawMessage) *sv3Nav {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var n sv3Nav
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil
	}
	return &n
}

// resolvePose prefers NOV_INS, refining its position with GNSS when present,
// and falls back to GNSS position with AHRS attitude.
func resolvePose(obs sv3Observations) (*pose, bool) {
	ins, gnss, ahrs := decodeNav(obs.NovIns), decodeNav(obs.GNSS), decodeNav(obs.AHRS)

	var p pose
	switch {
	case ins != nil:
		p.head, p.pitch, p.roll = ins.Head, ins.Pitch, ins.Roll
		p.latitude, p.longitude = ins.Latitude, ins.Longitude
		h := ins.HAE
		if gnss != nil {
			p.latitude, p.longitude, h = gnss.Latitude, gnss.Longitude, gnss.HAE
			p.sdx, p.sdy, p.sdz = gnss.SDX, gnss.SDY, gnss.SDZ
		}
		c := geodesy.ToECEF(p.latitude, p.longitude, h)
		p.east, p.north, p.up = c.X, c.Y, c.Z
	case gnss != nil && ahrs != nil:
		p.head, p.pitch, p.roll = ahrs.Head, ahrs.Pitch, ahrs.Roll
		p.latitude, p.longitude = gnss.Latitude, gnss.Longitude
		p.sdx, p.sdy, p.sdz = gnss.SDX, gnss.SDY, gnss.SDZ
		c := geodesy.ToECEF(gnss.Latitude, gnss.Longitude, gnss.HAE)
		p.east, p.north, p.up = c.X, c.Y, c.Z
	default:
		return nil, false
	}
	return &p, true
}

// shotBuilder pairs each range reply with the most recent interrogation.
type shotBuilder struct {
	profile Timing

	pingTime float64
	ping     *pose

	shots    []*rows.Shot
	acoustic []*rows.Acoustic
	dropped  int
}

func (b *shotBuilder) interrogation(ev *sv3Event) {
	p, ok := resolvePose(ev.Observations)
	if !ok {
		b.ping = nil
		return
	}
	b.ping = p
	b.pingTime = ev.Time.Common
}

func (b *shotBuilder) reply(ev *sv3Event) {
	if b.ping == nil || ev.Range == nil {
		return
	}
	r := ev.Range
	if r.Range == 0 {
		b.dropped++
		return
	}
	ret, ok := resolvePose(ev.Observations)
	if !ok {
		b.dropped++
		return
	}

	tat := r.TAT / b.profile.TATUnitsPerSecond
	tt := r.Range - tat - b.profile.TriggerDelay
	id := trimTransponder(r.CN)

	shot := &rows.Shot{
		PingTime:      b.pingTime,
		ReturnTime:    ev.Time.Common,
		TransponderID: id,
		Head0:         b.ping.head,
		Pitch0:        b.ping.pitch,
		Roll0:         b.ping.roll,
		East0:         b.ping.east,
		North0:        b.ping.north,
		Up0:           b.ping.up,
		EastStd0:      b.ping.sdx,
		NorthStd0:     b.ping.sdy,
		UpStd0:        b.ping.sdz,
		Head1:         ret.head,
		Pitch1:        ret.pitch,
		Roll1:         ret.roll,
		East1:         ret.east,
		North1:        ret.north,
		Up1:           ret.up,
		EastStd1:      ret.sdx,
		NorthStd1:     ret.sdy,
		UpStd1:        ret.sdz,
		TT:            tt,
		DBV:           first(r.Diag.DBV),
		XC:            first(r.Diag.XC),
		SNR:           rows.Float(first(r.Diag.SNR)),
		TAT:           rows.Float(tat),
	}
	b.shots = append(b.shots, shot)

	ping := rows.UnixSeconds(b.pingTime)
	b.acoustic = append(b.acoustic, &rows.Acoustic{
		TriggerTime:   ping,
		TransponderID: id,
		PingTime:      rows.SecondsOfDay(ping),
		ReturnTime:    rows.SecondsOfDay(rows.UnixSeconds(ev.Time.Common)),
		TT:            tt,
		DBV:           shot.DBV,
		XC:            shot.XC,
		SNR:           rows.Float(*shot.SNR),
		TAT:           rows.Float(tat),
	})
}

// ParseDFOP00 decodes an SV3 DFOP00 JSON-lines log into shot and acoustic
// rows. Lines that fail to decode make the whole file unparseable.
func ParseDFOP00(ctx context.Context, path string, profile Timing) ([]*rows.Shot, []*rows.Acoustic, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to open %s: %v", asset.ErrParse, path, err)
	}
	defer f.Close()

	b := &shotBuilder{profile: profile}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var ev sv3Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, nil, fmt.Errorf("%w: %s line %d: %v", asset.ErrParse, path, line, err)
		}
		switch ev.Event {
		case "interrogation":
			b.interrogation(&ev)
		case "range":
			b.reply(&ev)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read %s: %v", asset.ErrParse, path, err)
	}
	return b.shots, b.acoustic, nil
}

func trimTransponder(cn string) string {
	if len(cn) > 2 && cn[:2] == "IR" {
		return cn[2:]
	}
	return cn
}

func first(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return v[0]
}

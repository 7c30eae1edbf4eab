// Package rows defines the fixed per-kind time-series schemas held by the
// array store, with their range checks and defaults.
package rows

import (
	"fmt"
	"math"
	"time"
)

// Kind names one logical array store.
type Kind string

const (
	KindAcoustic            Kind = "acoustic"
	KindPosition            Kind = "kin_position"
	KindIMUPosition         Kind = "imu_position"
	KindShotPre             Kind = "shotdata_pre"
	KindShot                Kind = "shotdata"
	KindObservable          Kind = "gnss_obs"
	KindObservableSecondary Kind = "gnss_obs_secondary"
)

// Kinds lists every store kind kept per station.
func Kinds() []Kind {
	return []Kind{
		KindAcoustic, KindPosition, KindIMUPosition,
		KindShotPre, KindShot, KindObservable, KindObservableSecondary,
	}
}

// Row is implemented by every stored row type.
type Row interface {
	// Time is the primary timestamp the store partitions and sorts by.
	Time() time.Time
	// SecondaryKey orders rows sharing a timestamp and dedupes on consolidation.
	SecondaryKey() string
	// Normalize fills nullable and derived columns with their defaults.
	Normalize()
	// Check evaluates cross-field invariants that struct tags cannot express.
	Check() error
}

// Acoustic is one ranging reply, keyed by trigger time and transponder.
type Acoustic struct {
	TriggerTime   time.Time `json:"triggerTime" validate:"required"`
	TransponderID string    `json:"transponderID" validate:"required"`
	PingTime      float64   `json:"pingTime" validate:"gte=0,lte=86400"`
	ReturnTime    float64   `json:"returnTime" validate:"gte=0,lte=86400"`
	TT            float64   `json:"tt" validate:"gte=0,lte=600"`
	DBV           float64   `json:"dbv"`
	XC            float64   `json:"xc" validate:"gte=0,lte=100"`
	SNR           *float64  `json:"snr,omitempty" validate:"omitempty,gte=-100,lte=100"`
	TAT           *float64  `json:"tat,omitempty" validate:"omitempty,gte=0,lte=10"`
}

func (r *Acoustic) Time() time.Time      { return r.TriggerTime }
func (r *Acoustic) SecondaryKey() string { return r.TransponderID }

func (r *Acoustic) Normalize() {
	if r.SNR == nil {
		r.SNR = Float(0)
	}
	if r.TAT == nil {
		r.TAT = Float(0)
	}
}

// Check requires the reply to arrive after the request net of turn-around time.
// A return time earlier than the ping time is accepted only when it wraps past
// midnight.
func (r *Acoustic) Check() error {
	tat := 0.0
	if r.TAT != nil {
		tat = *r.TAT
	}
	dt := r.ReturnTime - r.PingTime
	if dt < -43200 {
		dt += 86400
	}
	if dt-tat <= 0 {
		return fmt.Errorf("returnTime %.6f not after pingTime %.6f net of tat %.6f", r.ReturnTime, r.PingTime, tat)
	}
	return nil
}

// Position is one kinematic GNSS solution epoch.
type Position struct {
	Timestamp          time.Time `json:"time" validate:"required"`
	Latitude           float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude          float64   `json:"longitude" validate:"gte=-180,lte=360"`
	Height             float64   `json:"height" validate:"gte=-101,lte=100"`
	East               float64   `json:"east" validate:"gte=-6378100,lte=6378100"`
	North              float64   `json:"north" validate:"gte=-6378100,lte=6378100"`
	Up                 float64   `json:"up" validate:"gte=-6378100,lte=6378100"`
	NumberOfSatellites int       `json:"number_of_satellites" validate:"gte=0,lte=125"`
	PDOP               float64   `json:"pdop" validate:"gte=0,lte=1000"`
	WRMS               float64   `json:"wrms" validate:"gte=0,lte=1000"`
}

func (r *Position) Time() time.Time      { return r.Timestamp }
func (r *Position) SecondaryKey() string { return "" }
func (r *Position) Normalize()           {}
func (r *Position) Check() error         { return nil }

// IMUPosition is one INS navigation epoch with its uncertainties.
type IMUPosition struct {
	Timestamp        time.Time `json:"time" validate:"required"`
	Latitude         float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude        float64   `json:"longitude" validate:"gte=-180,lte=360"`
	Height           float64   `json:"height" validate:"gte=-1000,lte=1000"`
	NorthVelocity    float64   `json:"northVelocity"`
	EastVelocity     float64   `json:"eastVelocity"`
	UpVelocity       float64   `json:"upVelocity"`
	Roll             float64   `json:"roll" validate:"gte=-180,lte=180"`
	Pitch            float64   `json:"pitch" validate:"gte=-90,lte=90"`
	Azimuth          float64   `json:"azimuth" validate:"gte=-180,lte=360"`
	LatitudeStd      *float64  `json:"latitudeStd,omitempty" validate:"omitempty,gte=0"`
	LongitudeStd     *float64  `json:"longitudeStd,omitempty" validate:"omitempty,gte=0"`
	HeightStd        *float64  `json:"heightStd,omitempty" validate:"omitempty,gte=0"`
	NorthVelocityStd *float64  `json:"northVelocityStd,omitempty" validate:"omitempty,gte=0"`
	EastVelocityStd  *float64  `json:"eastVelocityStd,omitempty" validate:"omitempty,gte=0"`
	UpVelocityStd    *float64  `json:"upVelocityStd,omitempty" validate:"omitempty,gte=0"`
	RollStd          *float64  `json:"rollStd,omitempty" validate:"omitempty,gte=0"`
	PitchStd         *float64  `json:"pitchStd,omitempty" validate:"omitempty,gte=0"`
	AzimuthStd       *float64  `json:"azimuthStd,omitempty" validate:"omitempty,gte=0"`
}

func (r *IMUPosition) Time() time.Time      { return r.Timestamp }
func (r *IMUPosition) SecondaryKey() string { return "" }
func (r *IMUPosition) Normalize()           {}
func (r *IMUPosition) Check() error         { return nil }

// Shot is one acoustic exchange with the vehicle pose bracketing it.
// Index 0 is the outbound (ping) pose and index 1 the inbound (return) pose.
type Shot struct {
	PingTime      float64  `json:"pingTime" validate:"gt=0"`
	ReturnTime    float64  `json:"returnTime" validate:"gt=0"`
	TransponderID string   `json:"transponderID" validate:"required"`
	Head0         float64  `json:"head0" validate:"gte=-180,lte=360"`
	Pitch0        float64  `json:"pitch0" validate:"gte=-90,lte=90"`
	Roll0         float64  `json:"roll0" validate:"gte=-180,lte=180"`
	Head1         float64  `json:"head1" validate:"gte=-180,lte=360"`
	Pitch1        float64  `json:"pitch1" validate:"gte=-90,lte=90"`
	Roll1         float64  `json:"roll1" validate:"gte=-180,lte=180"`
	East0         float64  `json:"east0" validate:"gte=-6378100,lte=6378100"`
	North0        float64  `json:"north0" validate:"gte=-6378100,lte=6378100"`
	Up0           float64  `json:"up0" validate:"gte=-6378100,lte=6378100"`
	East1         float64  `json:"east1" validate:"gte=-6378100,lte=6378100"`
	North1        float64  `json:"north1" validate:"gte=-6378100,lte=6378100"`
	Up1           float64  `json:"up1" validate:"gte=-6378100,lte=6378100"`
	EastStd0      *float64 `json:"east_std0,omitempty" validate:"omitempty,gte=0"`
	NorthStd0     *float64 `json:"north_std0,omitempty" validate:"omitempty,gte=0"`
	UpStd0        *float64 `json:"up_std0,omitempty" validate:"omitempty,gte=0"`
	EastStd1      *float64 `json:"east_std1,omitempty" validate:"omitempty,gte=0"`
	NorthStd1     *float64 `json:"north_std1,omitempty" validate:"omitempty,gte=0"`
	UpStd1        *float64 `json:"up_std1,omitempty" validate:"omitempty,gte=0"`
	TT            float64  `json:"tt" validate:"gte=0,lte=600"`
	DBV           float64  `json:"dbv"`
	XC            float64  `json:"xc" validate:"gte=0,lte=100"`
	SNR           *float64 `json:"snr,omitempty" validate:"omitempty,gte=-100,lte=100"`
	TAT           *float64 `json:"tat,omitempty" validate:"omitempty,gte=0,lte=10"`
	IsUpdated     bool     `json:"isUpdated"`
}

// TriggerTime returns the ping time as a UTC timestamp.
func (r *Shot) TriggerTime() time.Time { return UnixSeconds(r.PingTime) }

func (r *Shot) Time() time.Time      { return r.TriggerTime() }
func (r *Shot) SecondaryKey() string { return r.TransponderID }

func (r *Shot) Normalize() {
	if r.SNR == nil {
		r.SNR = Float(0)
	}
	if r.TAT == nil {
		r.TAT = Float(0)
	}
}

// Check requires the reply to arrive strictly after the ping, net of the
// transponder turn-around time.
func (r *Shot) Check() error {
	tat := 0.0
	if r.TAT != nil {
		tat = *r.TAT
	}
	if r.ReturnTime-r.PingTime-tat <= 0 {
		return fmt.Errorf("returnTime %.6f not after pingTime %.6f net of tat %.6f", r.ReturnTime, r.PingTime, tat)
	}
	return nil
}

// Clone returns a deep copy.
func (r *Shot) Clone() *Shot {
	c := *r
	for _, p := range []**float64{&c.EastStd0, &c.NorthStd0, &c.UpStd0, &c.EastStd1, &c.NorthStd1, &c.UpStd1, &c.SNR, &c.TAT} {
		if *p != nil {
			v := **p
			*p = &v
		}
	}
	return &c
}

// Observable is one raw GNSS signal observation.
type Observable struct {
	TimeMS  int64   `json:"time" validate:"gt=0"`
	Sys     string  `json:"sys" validate:"required,len=1"`
	Sat     int     `json:"sat" validate:"gte=1,lte=255"`
	Obs     string  `json:"obs" validate:"required,max=3"`
	Range   float64 `json:"range" validate:"gte=0"`
	Phase   float64 `json:"phase"`
	Doppler float64 `json:"doppler"`
	SNR     float64 `json:"snr" validate:"gte=0,lte=100"`
	Slip    int     `json:"slip" validate:"gte=0"`
	Flags   int     `json:"flags" validate:"gte=0"`
	FCN     int     `json:"fcn" validate:"gte=-7,lte=13"`
}

func (r *Observable) Time() time.Time { return time.UnixMilli(r.TimeMS).UTC() }
func (r *Observable) SecondaryKey() string {
	return fmt.Sprintf("%s%03d%s", r.Sys, r.Sat, r.Obs)
}
func (r *Observable) Normalize()   {}
func (r *Observable) Check() error { return nil }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Value dereferences p, returning NaN when nil.
func Value(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// UnixSeconds converts fractional unix seconds to a UTC time.
func UnixSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

// ToUnixSeconds converts a time to fractional unix seconds.
func ToUnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// SecondsOfDay returns the seconds elapsed since UTC midnight of t.
func SecondsOfDay(t time.Time) float64 {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return t.Sub(midnight).Seconds()
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

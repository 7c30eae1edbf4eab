package asset

import (
	"errors"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	base := func() *Record {
		return &Record{
			Type:      TypeDFOP00,
			LocalPath: "/data/NCC1/raw/x.DFOP00.raw",
			Network:   "cascadia",
			Station:   "NCC1",
			Campaign:  "2024_A_1126",
		}
	}

	tests := []struct {
		name        string
		mutate      func(r *Record)
		wantAllowed bool
	}{
		{name: "valid record", mutate: func(r *Record) {}, wantAllowed: true},
		{name: "unknown type", mutate: func(r *Record) { r.Type = "bogus" }},
		{name: "missing station", mutate: func(r *Record) { r.Station = "" }},
		{name: "no storage ref", mutate: func(r *Record) { r.LocalPath = "" }},
		{name: "remote only", mutate: func(r *Record) {
			r.LocalPath = ""
			r.RemotePath = "s3://bucket/x"
		}, wantAllowed: true},
		{name: "ordered span", mutate: func(r *Record) {
			r.TimeStart, r.TimeEnd = &start, &end
		}, wantAllowed: true},
		{name: "inverted span", mutate: func(r *Record) {
			r.TimeStart, r.TimeEnd = &end, &start
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base()
			tt.mutate(r)
			got := Validate(r)
			if got.Allowed != tt.wantAllowed {
				t.Errorf("Validate() allowed = %v, want %v (reason %q)", got.Allowed, tt.wantAllowed, got.Reason)
			}
			if !got.Allowed && got.Error() == nil {
				t.Error("expected non-nil error for disallowed result")
			}
		})
	}
}

func TestParseType(t *testing.T) {
	got, err := ParseType(" DFOP00 ")
	if err != nil || got != TypeDFOP00 {
		t.Fatalf("ParseType() = %q, %v", got, err)
	}
	if _, err := ParseType("nope"); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestRemoteTypeForURI(t *testing.T) {
	tests := map[string]RemoteType{
		"s3://bucket/key":         RemoteS3,
		"https://host/path/a.raw": RemoteHTTP,
		"http://host/a":           RemoteHTTP,
	}
	for uri, want := range tests {
		got, err := RemoteTypeForURI(uri)
		if err != nil || got != want {
			t.Errorf("RemoteTypeForURI(%q) = %q, %v; want %q", uri, got, err, want)
		}
	}
	if _, err := RemoteTypeForURI("ftp://x/y"); err == nil {
		t.Error("expected ftp scheme to be rejected")
	}
}

func TestAcceptsParent(t *testing.T) {
	tests := []struct {
		child, parent Type
		want          bool
	}{
		{TypeKin, TypeRinex, true},
		{TypeKinResiduals, TypeRinex, true},
		{TypeKin, TypeNovatel770, false},
		{TypeRinex, TypeNovatel000, true},
		{TypeRinex, TypeDFOP00, false},
		{TypeDFOP00, TypeSonardyne, false},
	}
	for _, tt := range tests {
		if got := tt.child.AcceptsParent(tt.parent); got != tt.want {
			t.Errorf("%s.AcceptsParent(%s) = %v, want %v", tt.child, tt.parent, got, tt.want)
		}
	}
	if len(TypeSonardyne.ParentTypes()) != 0 {
		t.Error("raw types take no parent")
	}
}

// Package asset contains the asset record model and its pure invariants.
package asset

import (
	"fmt"
	"sort"
	"strings"
)

// Type identifies the kind of file (raw or derived) an asset record points at.
// The set is closed: ParseType rejects anything not listed here.
type Type string

const (
	TypeNovatel      Type = "novatel"
	TypeNovatel770   Type = "novatel770"
	TypeNovatel000   Type = "novatel000"
	TypeNovatelPin   Type = "novatelpin"
	TypeDFOP00       Type = "dfop00"
	TypeSonardyne    Type = "sonardyne"
	TypeQCPin        Type = "qcpin"
	TypeRinex        Type = "rinex"
	TypeKin          Type = "kin"
	TypeKinResiduals Type = "kinresiduals"
	TypeSeabird      Type = "seabird"
	TypeCTD          Type = "ctd"
	TypeSVP          Type = "svp"
	TypeLeverArm     Type = "leverarm"
	TypeMaster       Type = "master"
	TypeSiteConfig   Type = "siteconfig"
	TypeATDOffset    Type = "atdoffset"
	TypeBCOffload    Type = "bcoffload"

	// Derived array-backed kinds.
	TypeKinPosition Type = "kinposition"
	TypeIMUPosition Type = "imuposition"
	TypeAcoustic    Type = "acoustic"
	TypeShotData    Type = "shotdata"
	TypeGNSSObsTDB  Type = "gnssobstdb"
)

var allTypes = []Type{
	TypeNovatel, TypeNovatel770, TypeNovatel000, TypeNovatelPin,
	TypeDFOP00, TypeSonardyne, TypeQCPin,
	TypeRinex, TypeKin, TypeKinResiduals,
	TypeSeabird, TypeCTD, TypeSVP,
	TypeLeverArm, TypeMaster, TypeSiteConfig, TypeATDOffset, TypeBCOffload,
	TypeKinPosition, TypeIMUPosition, TypeAcoustic, TypeShotData, TypeGNSSObsTDB,
}

var typeSet = func() map[Type]struct{} {
	m := make(map[Type]struct{}, len(allTypes))
	for _, t := range allTypes {
		m[t] = struct{}{}
	}
	return m
}()

// DownloadTypes are the raw types pulled from remote archives by default.
var DownloadTypes = []Type{
	TypeSonardyne, TypeNovatel000, TypeNovatel770, TypeDFOP00, TypeCTD, TypeSVP,
}

// AllTypes returns every known type in declaration order.
func AllTypes() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// ParseType converts a string into a Type. Matching is case-insensitive.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := typeSet[t]; !ok {
		return "", fmt.Errorf("%w: unknown asset type %q", ErrConfig, s)
	}
	return t, nil
}

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	_, ok := typeSet[t]
	return ok
}

func (t Type) String() string { return string(t) }

// IsDownloadable reports whether t is pulled from remote archives.
func (t Type) IsDownloadable() bool {
	for _, d := range DownloadTypes {
		if d == t {
			return true
		}
	}
	return false
}

var parentTypes = map[Type][]Type{
	TypeKin:          {TypeRinex},
	TypeKinResiduals: {TypeRinex},
	TypeRinex:        {TypeNovatel, TypeNovatel770, TypeNovatel000, TypeNovatelPin},
}

// ParentTypes returns the types a record of type t may derive from. Raw
// types have none.
func (t Type) ParentTypes() []Type { return parentTypes[t] }

// AcceptsParent reports whether a record of type t may name a parent of
// type p.
func (t Type) AcceptsParent(p Type) bool {
	for _, want := range parentTypes[t] {
		if want == p {
			return true
		}
	}
	return false
}

// RemoteType is the transport of a remote storage reference.
type RemoteType string

const (
	RemoteS3   RemoteType = "s3"
	RemoteHTTP RemoteType = "http"
)

// ParseRemoteType converts a string into a RemoteType.
func ParseRemoteType(s string) (RemoteType, error) {
	switch RemoteType(strings.ToLower(s)) {
	case RemoteS3:
		return RemoteS3, nil
	case RemoteHTTP, "https":
		return RemoteHTTP, nil
	}
	return "", fmt.Errorf("%w: unknown remote type %q", ErrConfig, s)
}

// RemoteTypeForURI infers the remote type from a URI scheme.
func RemoteTypeForURI(uri string) (RemoteType, error) {
	i := strings.Index(uri, "://")
	if i <= 0 {
		return "", fmt.Errorf("%w: uri %q has no scheme", ErrConfig, uri)
	}
	return ParseRemoteType(uri[:i])
}

// SortTypes sorts types in place by name.
func SortTypes(ts []Type) {
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
}

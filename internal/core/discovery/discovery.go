// Package discovery classifies files by name into asset types.
package discovery

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/example/sfg/internal/core/asset"
)

type rule struct {
	re *regexp.Regexp
	t  asset.Type
}

// Evaluated in order; the first match wins.
var rules = []rule{
	{regexp.MustCompile(`\.\d{2}[oO]$`), asset.TypeRinex},
	{regexp.MustCompile(`DFOP00\.raw`), asset.TypeDFOP00},
	{regexp.MustCompile(`NOV000`), asset.TypeNovatel000},
	{regexp.MustCompile(`NOV770`), asset.TypeNovatel770},
	{regexp.MustCompile(`(?i)novatel.*\.pin$`), asset.TypeNovatelPin},
	{regexp.MustCompile(`(?i)novatel|INSPVAA`), asset.TypeNovatel},
	{regexp.MustCompile(`sonardyne`), asset.TypeSonardyne},
	{regexp.MustCompile(`\.kin$`), asset.TypeKin},
	{regexp.MustCompile(`\.res$`), asset.TypeKinResiduals},
	{regexp.MustCompile(`lever_arms`), asset.TypeLeverArm},
	{regexp.MustCompile(`\.master$`), asset.TypeMaster},
	{regexp.MustCompile(`\.pin$`), asset.TypeQCPin},
	{regexp.MustCompile(`svpavg`), asset.TypeSeabird},
	{regexp.MustCompile(`CTD`), asset.TypeCTD},
	{regexp.MustCompile(`(?i)svp.*\.csv$`), asset.TypeSVP},
}

// Classify returns the asset type implied by a file's base name.
func Classify(path string) (asset.Type, bool) {
	name := filepath.Base(path)
	for _, r := range rules {
		if r.re.MatchString(name) {
			return r.t, true
		}
	}
	return "", false
}

// CampaignYear extracts the leading year from a campaign name such as
// "2024_A_1126".
func CampaignYear(campaign string) (int, error) {
	head, _, _ := strings.Cut(campaign, "_")
	y, err := strconv.Atoi(head)
	if err != nil || y < 1980 || y > 2200 {
		return 0, fmt.Errorf("%w: campaign %q does not start with a year", asset.ErrConfig, campaign)
	}
	return y, nil
}

// RinexName returns the short RINEX 3 observation file name for a site and day,
// e.g. NCC101530.24O for day-of-year 153 of 2024.
func RinexName(site string, year, doy int) string {
	return fmt.Sprintf("%s0%03d0.%02dO", strings.ToUpper(site), doy, year%100)
}

// Package sample writes synthetic raw accident tables with the same layout
// as the open-data release, for demos and end-to-end tests.
package sample

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"accident-severity/internal/common"
	"accident-severity/internal/dataset"
	"accident-severity/internal/pipeline"
)

// File names written by Generate.
const (
	CharacteristicsFile = "caract-sample.csv"
	OccupantsFile       = "usagers-sample.csv"
	VehiclesFile        = "vehicules-sample.csv"
	LocationsFile       = "lieux-sample.csv"
)

// Options control the generated data.
type Options struct {
	Accidents int
	Seed      int64
	Year      int
	// MissingRate is the share of optional cells left empty.
	MissingRate float64
}

func DefaultOptions() Options {
	return Options{Accidents: 1000, Seed: common.DefaultSeed, Year: 2023, MissingRate: 0.05}
}

// Stats counts what Generate wrote.
type Stats struct {
	Accidents int
	Occupants int
	Vehicles  int
	Severe    int
}

type generator struct {
	opts Options
	rng  *rand.Rand

	chars, occ, veh, loc *dataset.Table
	stats                Stats
}

// Generate writes the four semicolon-delimited tables into dir and returns
// their paths. Severity depends on speed limit, location, collision type
// and pedestrians so a classifier has something to learn.
func Generate(dir string, opts Options) (pipeline.Inputs, Stats, error) {
	if opts.Accidents <= 0 {
		return pipeline.Inputs{}, Stats{}, fmt.Errorf("accident count must be positive, got %d", opts.Accidents)
	}
	if opts.Year == 0 {
		opts.Year = DefaultOptions().Year
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pipeline.Inputs{}, Stats{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	g := &generator{
		opts: opts,
		rng:  rand.New(rand.NewSource(opts.Seed)),
		chars: dataset.New(common.ColRawAccidentID, "jour", "mois", "an", "hrmn", "lum", "dep", "com",
			"agg", "int", "atm", "col", "adr", "lat", "long"),
		occ: dataset.New(common.ColAccidentID, "id_usager", common.ColVehicleID, "num_veh", "place",
			common.ColUserCategory, common.ColSeverity, "sexe", common.ColBirthYear, "trajet"),
		veh: dataset.New(common.ColAccidentID, common.ColVehicleID, "num_veh", "senc", "catv", "obs",
			"obsm", "choc", "manv", "motor"),
		loc: dataset.New(common.ColAccidentID, "catr", "voie", "circ", "nbv", "vosp", "prof", "pr", "pr1",
			"plan", "lartpc", "larrout", "surf", "infra", "situ", "vma"),
	}

	for i := 0; i < opts.Accidents; i++ {
		if err := g.accident(i); err != nil {
			return pipeline.Inputs{}, Stats{}, err
		}
	}

	in := pipeline.Inputs{
		Characteristics: filepath.Join(dir, CharacteristicsFile),
		Occupants:       filepath.Join(dir, OccupantsFile),
		Vehicles:        filepath.Join(dir, VehiclesFile),
		Locations:       filepath.Join(dir, LocationsFile),
	}
	for path, t := range map[string]*dataset.Table{
		in.Characteristics: g.chars,
		in.Occupants:       g.occ,
		in.Vehicles:        g.veh,
		in.Locations:       g.loc,
	} {
		if err := dataset.WriteCSV(path, t, ';'); err != nil {
			return pipeline.Inputs{}, Stats{}, err
		}
	}
	return in, g.stats, nil
}

func (g *generator) accident(i int) error {
	id := strconv.FormatInt(int64(g.opts.Year)*1_000_000+int64(i+1), 10)
	r := g.rng

	agg := 1 + r.Intn(2) // 1 outside built-up area, 2 inside
	vma := []int{30, 50, 50, 50, 70, 80, 80, 90, 110, 130}[r.Intn(10)]
	if agg == 2 && vma > 70 {
		vma = 50
	}
	nVeh := 1 + r.Intn(3)
	col := 1 + r.Intn(7)
	if nVeh == 1 {
		col = 7
	}
	nOcc := nVeh + r.Intn(3)
	pedestrian := nVeh == 1 && r.Float64() < 0.3

	// logit of a severe outcome
	z := -2.2 + 0.03*float64(vma-50)
	if agg == 1 {
		z += 0.8
	}
	if nVeh == 1 {
		z += 0.6
	}
	if pedestrian {
		z += 1.2
	}
	severe := r.Float64() < 1/(1+math.Exp(-z))
	if severe {
		g.stats.Severe++
	}

	lat := fmt.Sprintf("%.5f", 43+r.Float64()*7)
	err := g.chars.AppendRow([]string{
		id, strconv.Itoa(1 + r.Intn(28)), strconv.Itoa(1 + r.Intn(12)), strconv.Itoa(g.opts.Year),
		fmt.Sprintf("%02d:%02d", r.Intn(24), r.Intn(60)),
		strconv.Itoa(1 + r.Intn(5)), strconv.Itoa(1 + r.Intn(95)), strconv.Itoa(10000 + r.Intn(90000)),
		strconv.Itoa(agg), strconv.Itoa(1 + r.Intn(9)), g.optional(strconv.Itoa(1 + r.Intn(9))), strconv.Itoa(col),
		g.optional("route " + strconv.Itoa(1+r.Intn(999))),
		// the release writes decimal commas
		commaDecimal(lat), commaDecimal(fmt.Sprintf("%.5f", -1+r.Float64()*8)),
	})
	if err != nil {
		return err
	}

	err = g.loc.AppendRow([]string{
		id, strconv.Itoa(1 + r.Intn(7)), g.optional(strconv.Itoa(r.Intn(100))), strconv.Itoa(1 + r.Intn(4)),
		strconv.Itoa(1 + r.Intn(4)), strconv.Itoa(r.Intn(4)), strconv.Itoa(1 + r.Intn(4)),
		g.optional(strconv.Itoa(r.Intn(50))), g.optional(strconv.Itoa(r.Intn(1000))),
		strconv.Itoa(1 + r.Intn(4)), g.optional(""), g.optional(strconv.Itoa(5 + r.Intn(10))),
		strconv.Itoa(1 + r.Intn(9)), strconv.Itoa(r.Intn(10)), strconv.Itoa(1 + r.Intn(8)), g.optional(strconv.Itoa(vma)),
	})
	if err != nil {
		return err
	}

	vehicleIDs := make([]string, nVeh)
	for v := 0; v < nVeh; v++ {
		vehicleIDs[v] = fmt.Sprintf("%s%02d", id[len(id)-4:], v+1)
		num := string(rune('A' + v))
		err := g.veh.AppendRow([]string{
			id, vehicleIDs[v], num, strconv.Itoa(1 + r.Intn(2)), strconv.Itoa([]int{1, 2, 7, 7, 7, 10, 33}[r.Intn(7)]),
			strconv.Itoa(r.Intn(17)), strconv.Itoa(r.Intn(10)), strconv.Itoa(r.Intn(10)), strconv.Itoa(r.Intn(27)), strconv.Itoa(1 + r.Intn(6)),
		})
		if err != nil {
			return err
		}
		g.stats.Vehicles++
	}

	for o := 0; o < nOcc; o++ {
		v := o % nVeh
		cat := 1
		if o > v {
			cat = 2
		}
		if pedestrian && o == nOcc-1 {
			cat = common.PedestrianCategory
		}
		grav := g.severity(severe && o == 0)
		err := g.occ.AppendRow([]string{
			id, strconv.Itoa(g.stats.Occupants + 1), vehicleIDs[v], string(rune('A' + v)), strconv.Itoa(1 + r.Intn(9)),
			strconv.Itoa(cat), grav, strconv.Itoa(1 + r.Intn(2)), g.optional(strconv.Itoa(1935 + r.Intn(70))), strconv.Itoa(r.Intn(10)),
		})
		if err != nil {
			return err
		}
		g.stats.Occupants++
	}
	g.stats.Accidents++
	return nil
}

// severity returns a grav code. The first occupant of a severe accident is
// killed or hospitalised; everyone else is unharmed or lightly injured.
func (g *generator) severity(severe bool) string {
	if severe {
		if g.rng.Float64() < 0.15 {
			return "2"
		}
		return "3"
	}
	if g.rng.Float64() < 0.5 {
		return "1"
	}
	return "4"
}

func (g *generator) optional(v string) string {
	if g.rng.Float64() < g.opts.MissingRate {
		return ""
	}
	return v
}


func commaDecimal(s string) string {
	for i := range s {
		if s[i] == '.' {
			return s[:i] + "," + s[i+1:]
		}
	}
	return s
}

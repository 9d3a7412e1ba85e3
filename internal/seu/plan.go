package seu

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrInvalidPlan is returned for plans that name an unknown site, field,
// replica or bit.
var ErrInvalidPlan = errors.New("invalid seu plan")

// Site names the injection point a flip targets.
type Site string

const (
	SiteCurrent Site = "curr"    // working copy, TMR off
	SiteReplica Site = "replica" // one TMR replica
	SitePrev    Site = "prev"    // stored reference sample
	SiteCommand Site = "cmd"     // command before protection
)

// Flip is one planned single-bit upset.
type Flip struct {
	Seq     uint32 `yaml:"seq"`
	Site    Site   `yaml:"site"`
	Replica int    `yaml:"replica,omitempty"`
	Field   string `yaml:"field"`
	Bit     uint   `yaml:"bit"`
}

// Target renders the flip location as used in diagnostic lines.
func (f Flip) Target() string {
	if f.Site == SiteReplica {
		return fmt.Sprintf("%s%d.%s", f.Site, f.Replica, f.Field)
	}
	return string(f.Site) + "." + f.Field
}

// Plan is an ordered list of flips.
type Plan struct {
	Name  string `yaml:"name"`
	Flips []Flip `yaml:"flips"`
}

var sampleFields = map[string]bool{"bx": true, "by": true, "bz": true}
var commandFields = map[string]bool{"mx": true, "my": true, "mz": true}

// Validate checks every flip against its site's fields.
func (p *Plan) Validate() error {
	for i, f := range p.Flips {
		if f.Bit > 31 {
			return fmt.Errorf("%w: flip %d: bit %d out of range", ErrInvalidPlan, i, f.Bit)
		}
		switch f.Site {
		case SiteCurrent, SitePrev:
			if !sampleFields[f.Field] {
				return fmt.Errorf("%w: flip %d: field %q not valid for site %s", ErrInvalidPlan, i, f.Field, f.Site)
			}
		case SiteReplica:
			if !sampleFields[f.Field] {
				return fmt.Errorf("%w: flip %d: field %q not valid for site %s", ErrInvalidPlan, i, f.Field, f.Site)
			}
			if f.Replica < 0 || f.Replica > 2 {
				return fmt.Errorf("%w: flip %d: replica %d out of range", ErrInvalidPlan, i, f.Replica)
			}
		case SiteCommand:
			if !commandFields[f.Field] {
				return fmt.Errorf("%w: flip %d: field %q not valid for site %s", ErrInvalidPlan, i, f.Field, f.Site)
			}
		default:
			return fmt.Errorf("%w: flip %d: unknown site %q", ErrInvalidPlan, i, f.Site)
		}
	}
	return nil
}

// ParsePlan decodes and validates a YAML plan.
func ParsePlan(raw []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode seu plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	sort.SliceStable(p.Flips, func(i, j int) bool { return p.Flips[i].Seq < p.Flips[j].Seq })
	return &p, nil
}

// LoadPlan reads a YAML plan from disk.
func LoadPlan(path string) (*Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seu plan: %w", err)
	}
	return ParsePlan(raw)
}

// GeneratePlan builds a reproducible plan with one flip every `every`
// samples starting at `every`, choosing field, replica and bit from a
// seeded generator.
func GeneratePlan(seed uint64, site Site, every uint32, count int) (*Plan, error) {
	if every == 0 || count <= 0 {
		return nil, fmt.Errorf("%w: every and count must be positive", ErrInvalidPlan)
	}
	fields := []string{"bx", "by", "bz"}
	if site == SiteCommand {
		fields = []string{"mx", "my", "mz"}
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x5e))
	p := &Plan{Name: fmt.Sprintf("generated-%s-%d", site, seed)}
	for i := 1; i <= count; i++ {
		f := Flip{
			Seq:   every * uint32(i),
			Site:  site,
			Field: fields[rng.IntN(len(fields))],
			Bit:   uint(rng.IntN(32)),
		}
		if site == SiteReplica {
			f.Replica = rng.IntN(3)
		}
		p.Flips = append(p.Flips, f)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

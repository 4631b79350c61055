package catalogs

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed levels.json
var defaultLevelsJSON []byte

//go:embed levels.schema.json
var levelsSchemaJSON string

var levelsSchema = jsonschema.MustCompileString("https://chronogrid.ai/schemas/levels.schema.json", levelsSchemaJSON)

// Catalog is the static level list. Progress (completed/stars) is not part of
// it; the engine owns that.
type Catalog struct {
	Levels []LevelDef
	ByID   map[string]LevelDef
	Digest string
}

type LevelDef struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Width        int            `json:"width,omitempty"`
	Height       int            `json:"height,omitempty"`
	MaxTimeSteps int            `json:"max_time_steps"`
	Goal         Goal           `json:"goal"`
	Stars        StarThresholds `json:"stars"`
}

// StarThresholds: fewer moves than Three earns 3 stars, fewer than Two earns 2,
// anything else 1.
type StarThresholds struct {
	Three int `json:"three"`
	Two   int `json:"two"`
}

func (s StarThresholds) Stars(moves int) int {
	switch {
	case moves < s.Three:
		return 3
	case moves < s.Two:
		return 2
	default:
		return 1
	}
}

type levelsFile struct {
	Levels []LevelDef `json:"levels"`
}

// Default returns the catalogue compiled into the binary.
func Default() (*Catalog, error) {
	c, err := Parse(defaultLevelsJSON)
	if err != nil {
		return nil, fmt.Errorf("embedded levels.json: %w", err)
	}
	return c, nil
}

// Load reads a catalogue from a levels.json file, or from a directory holding
// levels.json plus optional extra packs in levels.d/*.json (applied in name
// order, later ids replace earlier ones). An empty path yields Default.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		c, err := Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		return c, nil
	}

	files := []string{filepath.Join(path, "levels.json")}
	packs, err := filepath.Glob(filepath.Join(path, "levels.d", "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(packs)
	files = append(files, packs...)

	var merged []LevelDef
	var concat bytes.Buffer
	for _, p := range files {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		concat.Write(raw)
		concat.WriteByte('\n')

		defs, err := decodeLevels(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		merged = mergeLevels(merged, defs)
	}
	c, err := build(merged)
	if err != nil {
		return nil, err
	}
	c.Digest = sha256Hex(concat.Bytes())
	return c, nil
}

// Parse validates raw levels.json against the schema and builds a Catalog.
func Parse(raw []byte) (*Catalog, error) {
	defs, err := decodeLevels(raw)
	if err != nil {
		return nil, err
	}
	c, err := build(defs)
	if err != nil {
		return nil, err
	}
	c.Digest = sha256Hex(raw)
	return c, nil
}

func decodeLevels(raw []byte) ([]LevelDef, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if err := levelsSchema.Validate(doc); err != nil {
		return nil, err
	}
	var f levelsFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return f.Levels, nil
}

func mergeLevels(base, add []LevelDef) []LevelDef {
	for _, d := range add {
		replaced := false
		for i := range base {
			if base[i].ID == d.ID {
				base[i] = d
				replaced = true
				break
			}
		}
		if !replaced {
			base = append(base, d)
		}
	}
	return base
}

func build(defs []LevelDef) (*Catalog, error) {
	c := &Catalog{ByID: make(map[string]LevelDef, len(defs))}
	for _, d := range defs {
		if _, dup := c.ByID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate level id %q", d.ID)
		}
		if d.Stars.Two < d.Stars.Three {
			return nil, fmt.Errorf("level %s: stars.two (%d) below stars.three (%d)", d.ID, d.Stars.Two, d.Stars.Three)
		}
		if err := d.Goal.validate(d.Width, d.Height); err != nil {
			return nil, fmt.Errorf("level %s: %w", d.ID, err)
		}
		c.ByID[d.ID] = d
		c.Levels = append(c.Levels, d)
	}
	if len(c.Levels) == 0 {
		return nil, fmt.Errorf("no levels")
	}
	return c, nil
}

func (c *Catalog) Get(id string) (LevelDef, bool) {
	d, ok := c.ByID[id]
	return d, ok
}

func (c *Catalog) First() string {
	if len(c.Levels) == 0 {
		return ""
	}
	return c.Levels[0].ID
}

// Next returns the id after id in catalogue order, wrapping around.
func (c *Catalog) Next(id string) string { return c.step(id, 1) }

// Prev returns the id before id in catalogue order, wrapping around.
func (c *Catalog) Prev(id string) string { return c.step(id, -1) }

func (c *Catalog) step(id string, d int) string {
	n := len(c.Levels)
	if n == 0 {
		return ""
	}
	for i, l := range c.Levels {
		if l.ID == id {
			return c.Levels[((i+d)%n+n)%n].ID
		}
	}
	return c.Levels[0].ID
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

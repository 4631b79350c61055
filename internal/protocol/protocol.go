package protocol

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const Version = "1.0"

// Command types.
const (
	TypeInteract = "INTERACT"
	TypePause    = "PAUSE"
	TypeResume   = "RESUME"
	TypeReverse  = "REVERSE"
	TypeForward  = "FORWARD"
	TypeSeek     = "SEEK"
	TypeReset    = "RESET"
	TypeStart    = "START"
	TypeLeave    = "LEAVE"
	TypeAdvance  = "ADVANCE"
)

//go:embed command.schema.json
var commandSchemaJSON string

var commandSchema = jsonschema.MustCompileString("https://chronogrid.ai/schemas/command.schema.json", commandSchemaJSON)

// Command is one input to the engine. Only the fields of its Type are meaningful.
type Command struct {
	Type     string `json:"type"`
	X        int    `json:"x,omitempty"`
	Y        int    `json:"y,omitempty"`
	Position int    `json:"position,omitempty"`
	LevelID  string `json:"level_id,omitempty"`
	Ms       int64  `json:"ms,omitempty"`
}

func Interact(x, y int) Command       { return Command{Type: TypeInteract, X: x, Y: y} }
func Seek(p int) Command              { return Command{Type: TypeSeek, Position: p} }
func Start(levelID string) Command    { return Command{Type: TypeStart, LevelID: levelID} }
func Advance(d time.Duration) Command { return Command{Type: TypeAdvance, Ms: d.Milliseconds()} }
func Simple(typ string) Command       { return Command{Type: typ} }

func (c Command) Duration() time.Duration { return time.Duration(c.Ms) * time.Millisecond }

// MarshalJSON always writes ms for ADVANCE, since the schema requires it
// even when it is zero.
func (c Command) MarshalJSON() ([]byte, error) {
	type plain Command
	if c.Type != TypeAdvance {
		return json.Marshal(plain(c))
	}
	return json.Marshal(struct {
		plain
		Ms int64 `json:"ms"`
	}{plain(c), c.Ms})
}

func (c Command) String() string {
	switch c.Type {
	case TypeInteract:
		return fmt.Sprintf("%s(%d,%d)", c.Type, c.X, c.Y)
	case TypeSeek:
		return fmt.Sprintf("%s(%d)", c.Type, c.Position)
	case TypeStart:
		return fmt.Sprintf("%s(%s)", c.Type, c.LevelID)
	case TypeAdvance:
		return fmt.Sprintf("%s(%dms)", c.Type, c.Ms)
	default:
		return c.Type
	}
}

// DecodeCommand validates raw JSON against the command schema and decodes it.
func DecodeCommand(b []byte) (Command, error) {
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return Command{}, err
	}
	if err := commandSchema.Validate(doc); err != nil {
		return Command{}, err
	}
	var c Command
	if err := json.Unmarshal(b, &c); err != nil {
		return Command{}, err
	}
	return c, nil
}

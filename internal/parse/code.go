package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"machine-health-backend/internal/model"
)

var codeRe = regexp.MustCompile(`^([A-Za-z]+)-?(\d+)\s*$`)

// ParsedCode holds the structured data parsed from a machine code.
type ParsedCode struct {
	Type model.EquipmentType
	Seq  int
}

// typePrefixes maps upstream code prefixes to equipment types. Feeds are
// inconsistent about abbreviations, so several spellings are accepted.
var typePrefixes = map[string]model.EquipmentType{
	"PMP":   model.EquipmentPump,
	"PUMP":  model.EquipmentPump,
	"MTR":   model.EquipmentMotor,
	"MOT":   model.EquipmentMotor,
	"MOTOR": model.EquipmentMotor,
	"HVAC":  model.EquipmentHVAC,
	"AHU":   model.EquipmentHVAC,
}

// ParseCode extracts the equipment type and sequence number from a raw
// machine code such as "PMP-001" or "HVAC12". Unrecognized prefixes map
// to EquipmentOther rather than failing, since new equipment classes show
// up in the feed before they are known here.
func ParseCode(raw string) (ParsedCode, error) {
	s := strings.TrimSpace(raw)
	m := codeRe.FindStringSubmatch(s)
	if m == nil {
		return ParsedCode{}, fmt.Errorf("unable to parse machine code: %q", raw)
	}

	seq, err := strconv.Atoi(m[2])
	if err != nil {
		return ParsedCode{}, fmt.Errorf("unable to parse sequence from %q: %w", raw, err)
	}

	typ, ok := typePrefixes[strings.ToUpper(m[1])]
	if !ok {
		typ = model.EquipmentOther
	}

	return ParsedCode{Type: typ, Seq: seq}, nil
}

// Parsing and validation of UCI "option name ..." declarations. The core
// never interprets options beyond checking configuration requests against
// what the engine declared; the map itself is exported as data for the GUI.

package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app/models"
)

// ParseOptionLine parses one handshake option declaration, e.g.
//
//	option name Hash type spin default 16 min 1 max 33554432
//	option name Style type combo default Normal var Solid var Normal var Risky
//
// Returns false for lines that are not option declarations.
func ParseOptionLine(line string) (models.EngineOption, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "option name ") {
		return models.EngineOption{}, false
	}
	rest := line[len("option name "):]

	// The name itself may contain spaces, so split on the " type " keyword.
	namePart, typePart, ok := strings.Cut(rest, " type ")
	if !ok {
		return models.EngineOption{}, false
	}

	opt := models.EngineOption{Name: strings.TrimSpace(namePart)}
	if opt.Name == "" {
		return models.EngineOption{}, false
	}

	fields := strings.Fields(typePart)
	if len(fields) == 0 {
		return models.EngineOption{}, false
	}
	opt.Type = strings.ToLower(fields[0])
	switch opt.Type {
	case "check", "spin", "combo", "string", "button":
	default:
		return models.EngineOption{}, false
	}

	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "default":
			// default values (combo names, strings) may contain spaces;
			// collect until the next keyword.
			j := i + 1
			var val []string
			for ; j < len(fields); j++ {
				if fields[j] == "min" || fields[j] == "max" || fields[j] == "var" {
					break
				}
				val = append(val, fields[j])
			}
			opt.Default = strings.Join(val, " ")
			i = j - 1
		case "min":
			if i+1 < len(fields) {
				opt.Min, _ = strconv.Atoi(fields[i+1])
				i++
			}
		case "max":
			if i+1 < len(fields) {
				opt.Max, _ = strconv.Atoi(fields[i+1])
				i++
			}
		case "var":
			j := i + 1
			var val []string
			for ; j < len(fields); j++ {
				if fields[j] == "var" {
					break
				}
				val = append(val, fields[j])
			}
			opt.Vars = append(opt.Vars, strings.Join(val, " "))
			i = j - 1
		}
	}

	return opt, true
}

// ValidateOption checks a configuration request against the declared
// capability map without contacting the subprocess. A nil error means the
// setoption command is safe to send.
func ValidateOption(opts map[string]models.EngineOption, name, value string) error {
	opt, ok := opts[name]
	if !ok {
		return fmt.Errorf("%w: unknown option %q", ErrConfigurationRejected, name)
	}
	switch opt.Type {
	case "check":
		if value != "true" && value != "false" {
			return fmt.Errorf("%w: option %q wants true/false, got %q", ErrConfigurationRejected, name, value)
		}
	case "spin":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: option %q wants an integer, got %q", ErrConfigurationRejected, name, value)
		}
		if n < opt.Min || n > opt.Max {
			return fmt.Errorf("%w: option %q value %d outside [%d,%d]", ErrConfigurationRejected, name, n, opt.Min, opt.Max)
		}
	case "combo":
		for _, v := range opt.Vars {
			if v == value {
				return nil
			}
		}
		return fmt.Errorf("%w: option %q has no choice %q", ErrConfigurationRejected, name, value)
	case "button":
		if value != "" {
			return fmt.Errorf("%w: option %q is a button and takes no value", ErrConfigurationRejected, name)
		}
	case "string":
		// any value
	}
	return nil
}

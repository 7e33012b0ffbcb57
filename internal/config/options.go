package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	prerrors "github.com/mrz1836/go-wpt-check/internal/errors"
	"github.com/mrz1836/go-wpt-check/internal/wpt"
)

// readObject reads a JSON or YAML file whose top level must be an object
func readObject(path, what string) (map[string]any, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the action inputs
	if err != nil {
		return nil, prerrors.NewConfigurationError(
			fmt.Sprintf("failed to read %s file %s: %v", what, path, err),
			"Check that the path is relative to the repository root",
		)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, prerrors.NewConfigurationError(
			fmt.Sprintf("failed to parse %s file %s: %v", what, path, err),
			"The file must contain a JSON or YAML object",
		)
	}
	if len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
		return nil, prerrors.NewConfigurationError(
			fmt.Sprintf("%s file %s is not an object", what, path),
			"The file must contain a JSON or YAML object",
		)
	}

	var obj map[string]any
	if err := node.Decode(&obj); err != nil {
		return nil, prerrors.NewConfigurationError(
			fmt.Sprintf("failed to decode %s file %s: %v", what, path, err),
			"The file must contain a JSON or YAML object",
		)
	}
	return obj, nil
}

// mergeSettings applies a settings object to opts. Known keys map to fields and the
// rest are passed through to runtest.php.
func mergeSettings(opts *wpt.TestOptions, settings map[string]any) error {
	for key, value := range settings {
		var err error
		switch key {
		case "runs":
			opts.Runs, err = asInt(key, value)
		case "location":
			opts.Location = fmt.Sprint(value)
		case "connectivity":
			opts.Connectivity = fmt.Sprint(value)
		case "firstViewOnly":
			opts.FirstViewOnly, err = asBool(key, value)
		case "emulateMobile":
			opts.EmulateMobile, err = asBool(key, value)
		case "pollResults":
			opts.PollInterval, err = asSeconds(key, value)
		case "timeout":
			opts.Timeout, err = asSeconds(key, value)
		case "label":
			opts.Label = fmt.Sprint(value)
		default:
			if opts.Extra == nil {
				opts.Extra = make(map[string]any)
			}
			opts.Extra[key] = value
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func invalidSetting(key string, value any, want string) error {
	return prerrors.NewConfigurationError(
		fmt.Sprintf("setting %q must be %s, got %v", key, want, value),
		"Fix the value in the WebPageTest settings file",
	)
}

func asInt(key string, value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n, nil
		}
	}
	return 0, invalidSetting(key, value, "a whole number")
}

func asBool(key string, value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b, nil
		}
	}
	return false, invalidSetting(key, value, "a boolean")
}

func asSeconds(key string, value any) (time.Duration, error) {
	switch v := value.(type) {
	case int:
		if v >= 0 {
			return time.Duration(v) * time.Second, nil
		}
	case float64:
		if v >= 0 {
			return time.Duration(v * float64(time.Second)), nil
		}
	}
	return 0, invalidSetting(key, value, "a non-negative number of seconds")
}

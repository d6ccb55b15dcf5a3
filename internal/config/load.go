package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load reads a pipeline file. Files ending in .yaml or .yml are decoded as
// YAML, everything else as JSON. Defaults are applied after decoding.
func Load(path string) (Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, errors.Wrap(err, "open config")
	}
	p, err := Decode(b, filepath.Ext(path))
	if err != nil {
		return Pipeline{}, errors.Wrapf(err, "decode config %s", path)
	}
	return p, nil
}

// Decode parses b as YAML when ext is .yaml/.yml and as JSON otherwise.
func Decode(b []byte, ext string) (Pipeline, error) {
	var p Pipeline
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return Pipeline{}, errors.Wrap(err, "yaml")
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return Pipeline{}, errors.Wrap(err, "json")
		}
	}
	p.ApplyDefaults()
	return p, nil
}

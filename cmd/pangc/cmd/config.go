// Copyright © 2018 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// defaultsConfig holds per-user defaults for flags that are tedious to
// repeat on every invocation. Any field left at its zero value is ignored,
// so an empty or partial config.toml is valid.
type defaultsConfig struct {
	KmerLen         int `toml:"kmer-len" comment:"splitter k-mer length"`
	SegmentSize     int `toml:"segment-size" comment:"target splitter spacing"`
	MinMatchLen     int `toml:"min-match-len" comment:"minimum delta-match length"`
	PackCardinality int `toml:"pack-cardinality" comment:"segments per delta batch"`
	Threads         int `toml:"threads" comment:"number of CPUs to use"`
}

// configPath returns ~/.pangc/config.toml, resolving the home directory the
// way the rest of this author's CLIs do.
func configPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".pangc", "config.toml"), nil
}

// loadDefaultsConfig reads the user's config file, returning a zero-value
// config (not an error) when it does not exist.
func loadDefaultsConfig() (*defaultsConfig, error) {
	path, err := configPath()
	if err != nil {
		return &defaultsConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &defaultsConfig{}, nil
		}
		return nil, err
	}
	cfg := &defaultsConfig{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// applyConfigDefaults overrides any flag in names the user did not pass
// explicitly with the matching value from ~/.pangc/config.toml.
func applyConfigDefaults(cmd *cobra.Command, cfg *defaultsConfig) {
	set := func(name string, v int) {
		if v == 0 || cmd.Flags().Lookup(name) == nil || cmd.Flags().Changed(name) {
			return
		}
		checkError(cmd.Flags().Set(name, fmt.Sprint(v)))
	}
	set("kmer-len", cfg.KmerLen)
	set("segment-size", cfg.SegmentSize)
	set("min-match-len", cfg.MinMatchLen)
	set("pack-cardinality", cfg.PackCardinality)
	set("threads", cfg.Threads)
}

// buildInfo is the sidecar summary written next to a freshly written
// archive, mirroring the info.toml side file convention used elsewhere in
// this author's indexing tools.
type buildInfo struct {
	Archive         string `toml:"archive" comment:"archive file this summary describes"`
	K               int    `toml:"kmer-len"`
	SegmentSize     int    `toml:"segment-size"`
	MinMatchLen     int    `toml:"min-match-len"`
	PackCardinality int    `toml:"pack-cardinality"`
	NoRawGroups     uint32 `toml:"no-raw-groups"`
	NoSamples       int    `toml:"no-samples"`
	CreatedAt       string `toml:"created-at"`
	CmdLine         string `toml:"cmd-line"`
}

// writeBuildInfo marshals info as TOML and writes it to path, overwriting
// any previous summary.
func writeBuildInfo(path string, info buildInfo) error {
	data, err := toml.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

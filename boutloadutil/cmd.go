/*
Copyright © 2019 the boutload authors.
This file is part of boutload.

boutload is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

boutload is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with boutload.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package boutloadutil holds the configuration and subcommands of the
// boutload command-line tool.
package boutloadutil

import (
	"fmt"

	"github.com/boutproject/boutload"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds the global configuration. Every command-line flag is also
// settable through a configuration file or a BOUTLOAD_<flag>
// environment variable.
var Cfg *viper.Viper

func init() {
	options := []struct {
		name, shorthand, usage string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name:       "config",
			usage:      "config specifies the path to a configuration file.",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name:       "verbose",
			shorthand:  "v",
			usage:      "verbose enables debug logging.",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name:       "datapath",
			shorthand:  "d",
			usage:      "datapath is the dump file, directory or glob pattern to load.",
			defaultVal: "BOUT.dmp.*.nc",
			flagsets:   []*pflag.FlagSet{infoCmd.Flags(), mergeCmd.Flags(), restartCmd.Flags()},
		},
		{
			name:       "input",
			usage:      "input is the path to the BOUT.inp options file of the run.",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{infoCmd.Flags(), mergeCmd.Flags(), restartCmd.Flags()},
		},
		{
			name:       "grid",
			usage:      "grid is the path to the grid file of the run.",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{infoCmd.Flags(), mergeCmd.Flags(), restartCmd.Flags()},
		},
		{
			name:       "geometry",
			usage:      "geometry names a registered geometry transform to apply.",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{infoCmd.Flags(), mergeCmd.Flags(), restartCmd.Flags()},
		},
		{
			name:       "keep_xboundaries",
			usage:      "keep_xboundaries retains guard cells at the x domain boundaries.",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{infoCmd.Flags(), mergeCmd.Flags(), restartCmd.Flags()},
		},
		{
			name:       "keep_yboundaries",
			usage:      "keep_yboundaries retains guard cells at the y domain boundaries.",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{infoCmd.Flags(), mergeCmd.Flags(), restartCmd.Flags()},
		},
		{
			name:       "output",
			shorthand:  "o",
			usage:      "output is the path of the unified file to write.",
			defaultVal: "boutdata.nc",
			flagsets:   []*pflag.FlagSet{mergeCmd.Flags()},
		},
		{
			name:       "variables",
			usage:      "variables restricts the merge to the named variables.",
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{mergeCmd.Flags()},
		},
		{
			name:       "separate_vars",
			usage:      "separate_vars writes one file per time-dependent variable.",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{mergeCmd.Flags()},
		},
		{
			name:       "outdir",
			usage:      "outdir is the directory the restart files are written to.",
			defaultVal: ".",
			flagsets:   []*pflag.FlagSet{restartCmd.Flags()},
		},
		{
			name:       "nxpe",
			usage:      "nxpe is the number of processors in the x direction.",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{restartCmd.Flags()},
		},
		{
			name:       "nype",
			usage:      "nype is the number of processors in the y direction.",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{restartCmd.Flags()},
		},
		{
			name:       "original_split",
			usage:      "original_split reuses the decomposition the run was produced with.",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{restartCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("BOUTLOAD")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch d := option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, d, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, d, option.usage)
				}
			case []string:
				set.StringSlice(option.name, d, option.usage)
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, d, option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, d, option.usage)
				}
			case int:
				set.Int(option.name, d, option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(infoCmd)
	Root.AddCommand(mergeCmd)
	Root.AddCommand(restartCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("boutload: problem reading configuration file: %v", err)
		}
	}
	if Cfg.GetBool("verbose") {
		logrus.SetLevel(logrus.DebugLevel)
	}
	return nil
}

// openDataset reconstructs the dataset described by the shared flags.
func openDataset() (*boutload.Dataset, error) {
	var opts []boutload.Option
	if p := Cfg.GetString("input"); p != "" {
		opts = append(opts, boutload.WithInputFile(p))
	}
	if p := Cfg.GetString("grid"); p != "" {
		opts = append(opts, boutload.WithGridFile(p))
	}
	if g := Cfg.GetString("geometry"); g != "" {
		opts = append(opts, boutload.WithGeometry(g))
	}
	opts = append(opts,
		boutload.KeepXBoundaries(Cfg.GetBool("keep_xboundaries")),
		boutload.KeepYBoundaries(Cfg.GetBool("keep_yboundaries")))
	return boutload.Open(Cfg.GetString("datapath"), opts...)
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "boutload",
	Short: "A loader for parallel BOUT++ simulation output.",
	Long: `boutload reassembles the per-processor dump files of a BOUT++
simulation run into a single logical dataset, trimming guard cells and
concatenating restarted runs along time.

Configuration can be changed by using a configuration file (and providing
the path to the file using the --config flag), by using command-line
arguments, or by setting environment variables in the format
'BOUTLOAD_var' where 'var' is the name of the variable to be set.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of boutload.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("boutload v%s\n", boutload.Version)
	},
	DisableAutoGenTag: true,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Summarize a run",
	Long: `info reconstructs the dataset and prints its dimensions,
variables and metadata without reading any field data.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := openDataset()
		if err != nil {
			return err
		}
		defer ds.Close()
		cmd.Print(ds.String())
		return nil
	},
	DisableAutoGenTag: true,
}

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Write the run as a single unpartitioned file",
	Long: `merge reconstructs the dataset and writes it back out as one
netCDF file (or, with --separate_vars, one file per time-dependent
variable), streaming one time record at a time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := openDataset()
		if err != nil {
			return err
		}
		defer ds.Close()
		var opts []boutload.SaveOption
		vars, err := cast.ToStringSliceE(Cfg.Get("variables"))
		if err != nil {
			return fmt.Errorf("boutload: invalid variables flag: %v", err)
		}
		if len(vars) > 0 {
			opts = append(opts, boutload.SaveVariables(vars...))
		}
		if Cfg.GetBool("separate_vars") {
			opts = append(opts, boutload.SeparateVars(true))
		}
		return ds.Save(Cfg.GetString("output"), opts...)
	},
	DisableAutoGenTag: true,
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Generate restart files from the final time record",
	Long: `restart reconstructs the dataset and writes its final time
record as a set of BOUT.restart.*.nc files, decomposed onto the
processor grid given by --nxpe and --nype (or the run's original grid
with --original_split).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := openDataset()
		if err != nil {
			return err
		}
		defer ds.Close()
		var opts []boutload.RestartOption
		if Cfg.GetBool("original_split") {
			opts = append(opts, boutload.OriginalSplitting())
		}
		paths, err := ds.ToRestart(Cfg.GetString("outdir"),
			Cfg.GetInt("nxpe"), Cfg.GetInt("nype"), opts...)
		if err != nil {
			return err
		}
		for _, p := range paths {
			cmd.Println(p)
		}
		return nil
	},
	DisableAutoGenTag: true,
}

/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/tmscoil/InputParameters"
	"github.com/notargets/tmscoil/utils"
)

var (
	cfgFile     string
	profileStop interface{ Stop() }
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tmscoil",
	Short: "TMS coil field evaluation and deformation optimization",
	Long: `
Evaluates the magnetic vector potential of a TMS coil model and optimizes the
coil's deformations so the casing sits as close to a target surface as possible
without intersecting it.

tmscoil optimize -I coil.yaml`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch mode := viper.GetString("profile"); mode {
		case "":
		case "cpu":
			profileStop = profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
		case "mem":
			profileStop = profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook)
		default:
			return errors.Errorf("unknown profile mode %q, want cpu or mem", mode)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			fmt.Fprintln(cmd.OutOrStdout(), utils.GetMemUsage())
		}
		if profileStop != nil {
			profileStop.Stop()
			profileStop = nil
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tmscoil.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "print progress of every search phase")
	rootCmd.PersistentFlags().String("profile", "", "write a cpu or mem profile to the current directory")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("profile", rootCmd.PersistentFlags().Lookup("profile"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		// Search config in home directory with name ".tmscoil" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".tmscoil")
	}
	viper.SetEnvPrefix("tmscoil")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil && viper.GetBool("verbose") {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// readInput loads the deck named by the -I flag, printing an example deck
// when none is given
func readInput(cmd *cobra.Command, out io.Writer) (ip *InputParameters.InputParameters, err error) {
	var fileName string
	if fileName, err = cmd.Flags().GetString("inputConditionsFile"); err != nil {
		return
	}
	if len(fileName) == 0 {
		fmt.Fprintf(out, "Example File:%s\n", InputParameters.Example)
		err = errors.New("must supply an input parameters file (-I, --inputConditionsFile) in YAML format")
		return
	}
	return InputParameters.ReadFile(fileName)
}

// header starts every report with a run id so outputs can be matched to runs
func header(out io.Writer, command string, ip *InputParameters.InputParameters) {
	fmt.Fprintf(out, "tmscoil %s, run %s\n", command, uuid.New().String())
	if viper.GetBool("verbose") {
		ip.Fprint(out)
	}
}

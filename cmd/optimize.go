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

	"github.com/ghodss/yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/tmscoil/InputParameters"
	"github.com/notargets/tmscoil/coil"
)

// OptimizeCmd represents the optimize command
var OptimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Optimize coil deformations against a target surface",
	Long: `
Moves the coil's deformations within their ranges to minimize the mean distance
between the casing and the target surface without letting the casing enter it.

tmscoil optimize -I coil.yaml -o optimized.yaml`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var (
			ip  *InputParameters.InputParameters
			out = cmd.OutOrStdout()
		)
		if ip, err = readInput(cmd, out); err != nil {
			return
		}
		header(out, "optimize", ip)
		settings := ip.OptimizerSettings()
		overrideSettings(settings)
		var result *OptimizeResult
		if result, err = RunOptimize(out, ip, settings); err != nil {
			return
		}
		outFile, _ := cmd.Flags().GetString("output")
		if outFile != "" {
			var data []byte
			if data, err = yaml.Marshal(result); err != nil {
				return
			}
			if err = os.WriteFile(outFile, data, 0644); err != nil {
				return
			}
			fmt.Fprintf(out, "Wrote %s\n", outFile)
		}
		return
	},
}

func init() {
	rootCmd.AddCommand(OptimizeCmd)
	OptimizeCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file describing the coil, its deformations and the target")
	OptimizeCmd.Flags().StringP("output", "o", "", "write the optimized deformation values to this YAML file")
	OptimizeCmd.Flags().Float64("gradientStepEps", 0, "finite difference step of the local search gradient")
	OptimizeCmd.Flags().Int("maxLineSearchSteps", 0, "line search iterations allowed per local search iteration")
	OptimizeCmd.Flags().Int("directMaxEvaluations", 0, "evaluation budget of the global search, 0 for 1000 per deformation")
	for _, name := range []string{"gradientStepEps", "maxLineSearchSteps", "directMaxEvaluations"} {
		_ = viper.BindPFlag("optimizer."+name, OptimizeCmd.Flags().Lookup(name))
	}
}

// overrideSettings applies values set on the command line or in the config file
func overrideSettings(s *coil.OptimizerSettings) {
	if viper.IsSet("optimizer.gradientStepEps") && viper.GetFloat64("optimizer.gradientStepEps") > 0 {
		s.GradientStepEps = viper.GetFloat64("optimizer.gradientStepEps")
	}
	if viper.IsSet("optimizer.maxLineSearchSteps") && viper.GetInt("optimizer.maxLineSearchSteps") > 0 {
		s.MaxLineSearchSteps = viper.GetInt("optimizer.maxLineSearchSteps")
	}
	if viper.IsSet("optimizer.directMaxEvaluations") && viper.GetInt("optimizer.directMaxEvaluations") > 0 {
		s.DirectMaxEvaluations = viper.GetInt("optimizer.directMaxEvaluations")
	}
}

type DeformationResult struct {
	Name    string  `json:"Name"`
	Initial float64 `json:"Initial"`
	Current float64 `json:"Current"`
}

type OptimizeResult struct {
	InitialDistance float64             `json:"InitialDistance"`
	BestDistance    float64             `json:"BestDistance"`
	Deformations    []DeformationResult `json:"Deformations"`
}

func RunOptimize(out io.Writer, ip *InputParameters.InputParameters, settings *coil.OptimizerSettings) (result *OptimizeResult, err error) {
	var c *coil.Coil
	if c, err = ip.BuildCoil(); err != nil {
		return
	}
	target, err := ip.BuildTarget()
	if err != nil {
		return
	}
	affine, err := ip.PlacementAffine()
	if err != nil {
		return
	}
	if viper.GetBool("verbose") {
		settings.Progress = out
	}
	before := c.DeformationSettings()
	result = &OptimizeResult{}
	if result.InitialDistance, result.BestDistance, err = c.OptimizeDeformations(target, affine, settings); err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "%8.5f\t\t= Initial mean distance (mm)\n", result.InitialDistance)
	fmt.Fprintf(out, "%8.5f\t\t= Optimized mean distance (mm)\n", result.BestDistance)
	for i, d := range c.Deformations() {
		fmt.Fprintf(out, "Deformation[%s] = %8.5f (was %8.5f)\n", d.Name, d.Current(), before[i])
		result.Deformations = append(result.Deformations, DeformationResult{
			Name:    d.Name,
			Initial: before[i],
			Current: d.Current(),
		})
	}
	return
}

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

	"github.com/notargets/tmscoil/InputParameters"
	"github.com/notargets/tmscoil/coil"
)

// GridCmd represents the grid command
var GridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Tabulate the coil's vector potential on a regular grid",
	Long: `
Samples the coil field on the grid given by the coil's Limits and Resolution
(or --resolution) and writes it as a YAML grid element that can be pasted back
into a deck as a "grid" element.

tmscoil grid -I coil.yaml -o grid.yaml`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var (
			ip  *InputParameters.InputParameters
			out = cmd.OutOrStdout()
		)
		if ip, err = readInput(cmd, out); err != nil {
			return
		}
		header(out, "grid", ip)
		var resolution *[3]float64
		if res, _ := cmd.Flags().GetFloat64("resolution"); res > 0 {
			resolution = &[3]float64{res, res, res}
		}
		var el *InputParameters.ElementParameters
		if el, err = RunGrid(out, ip, resolution); err != nil {
			return
		}
		outFile, _ := cmd.Flags().GetString("output")
		if outFile == "" {
			return
		}
		var data []byte
		if data, err = yaml.Marshal(el); err != nil {
			return
		}
		if err = os.WriteFile(outFile, data, 0644); err != nil {
			return
		}
		fmt.Fprintf(out, "Wrote %s\n", outFile)
		return
	},
}

func init() {
	rootCmd.AddCommand(GridCmd)
	GridCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file describing the coil and its sampling grid")
	GridCmd.Flags().StringP("output", "o", "", "write the sampled grid element to this YAML file")
	GridCmd.Flags().Float64("resolution", 0, "isotropic grid resolution in mm, overrides the deck")
}

// RunGrid samples the coil and returns the grid as a deck element
func RunGrid(out io.Writer, ip *InputParameters.InputParameters, resolution *[3]float64) (el *InputParameters.ElementParameters, err error) {
	var (
		c  *coil.Coil
		fg *coil.FieldGrid
	)
	if c, err = ip.BuildCoil(); err != nil {
		return
	}
	if fg, err = c.FieldGrid(nil, resolution); err != nil {
		return
	}
	el = &InputParameters.ElementParameters{
		Name:       c.Name,
		Type:       "grid",
		Dims:       fg.Dims,
		GridAffine: fg.Affine.Data(),
		Values:     make([][3]float64, len(fg.Values)),
	}
	for i, v := range fg.Values {
		el.Values[i] = [3]float64{v.X, v.Y, v.Z}
	}
	fmt.Fprintf(out, "[%d %d %d]\t\t\t= Grid dimensions\n", fg.Dims[0], fg.Dims[1], fg.Dims[2])
	return
}

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

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/tmscoil/InputParameters"
)

// FieldCmd represents the field command
var FieldCmd = &cobra.Command{
	Use:   "field",
	Short: "Evaluate the coil's vector potential at the deck's field points",
	Long: `
Prints dA/dt at every FieldPoints entry of the input deck, using the deck's
DIDt (or --didt) and coil placement.

tmscoil field -I coil.yaml`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var (
			ip  *InputParameters.InputParameters
			out = cmd.OutOrStdout()
		)
		if ip, err = readInput(cmd, out); err != nil {
			return
		}
		header(out, "field", ip)
		if didt, _ := cmd.Flags().GetFloat64("didt"); didt != 0 {
			ip.DIDt = didt
		}
		_, err = RunField(out, ip)
		return
	},
}

func init() {
	rootCmd.AddCommand(FieldCmd)
	FieldCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file describing the coil and the field points")
	FieldCmd.Flags().Float64("didt", 0, "rate of change of the coil current in A/s, overrides the deck")
}

// RunField returns dA/dt at the deck's field points; with no DIDt the field
// is per unit dI/dt
func RunField(out io.Writer, ip *InputParameters.InputParameters) (A []r3.Vec, err error) {
	c, err := ip.BuildCoil()
	if err != nil {
		return
	}
	affine, err := ip.PlacementAffine()
	if err != nil {
		return
	}
	var (
		points = ip.Points()
		didt   = ip.DIDt
	)
	if didt == 0 {
		didt = 1
	}
	if A, err = c.DaDt(points, affine, didt); err != nil {
		return
	}
	fmt.Fprintf(out, "%8.3e\t\t= dI/dt (A/s)\n", didt)
	for i, p := range points {
		fmt.Fprintf(out, "[%8.3f %8.3f %8.3f] -> [%12.5e %12.5e %12.5e]\n", p.X, p.Y, p.Z, A[i].X, A[i].Y, A[i].Z)
	}
	return
}

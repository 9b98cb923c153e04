/*
Copyright © 2025 dyncheckd contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
package cmd

import (
	"fmt"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"dyncheckd.dev/server/server"
	"dyncheckd.dev/server/sourcefile"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check [files...]",
	Short: "Type-check a fileset once and print diagnostics",
	Long: `Run a single incremental type-check over the given files against a
fresh analysis environment and print the resulting diagnostics, then exit.
Equivalent to issuing one TypeCheckRequest to the server and reading back
its response, without opening a transport.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		state := server.New(cfg)
		resp, err := state.Process(server.TypeCheckRequest{
			UpdateEnvironmentWith: args,
			Check:                 args,
		})
		if err != nil {
			return err
		}
		tcr, ok := resp.(server.TypeCheckResponse)
		if !ok {
			return fmt.Errorf("unexpected response type %T from TypeCheckRequest", resp)
		}

		return printCheckResults(tcr)
	},
}

func printCheckResults(resp server.TypeCheckResponse) error {
	handles := make([]sourcefile.FileHandle, 0, len(resp.Errors))
	for handle := range resp.Errors {
		handles = append(handles, handle)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	total := 0
	for _, handle := range handles {
		errs := resp.Errors[handle]
		if len(errs) == 0 {
			pterm.Success.Printf("%s: no errors\n", handle)
			continue
		}
		total += len(errs)
		for _, e := range errs {
			pterm.Error.Printf("%s:%d:%d: %s\n", e.Path, e.Line, e.Col, e.Message)
		}
	}

	if total > 0 {
		return fmt.Errorf("%d type error(s) found", total)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

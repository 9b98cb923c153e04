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
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dyncheckd.dev/server/cmd/config"
	"dyncheckd.dev/server/internal/logging"
	"dyncheckd.dev/server/internal/platform"
	"dyncheckd.dev/server/server"
	"dyncheckd.dev/server/sourcefile"
	"dyncheckd.dev/server/transport"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the incremental type-analysis server",
	Long: `Launch the long-running incremental type-analysis server: a request
dispatcher that maintains a persistent analysis environment and answers
type-check, type-query, and editor-assist requests over a length-framed
socket or the Language Server Protocol.

Exactly one transport flag may be given; stdio is the default, suited to
editor-spawned processes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := applyTransportFlags(cmd, cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logging.SetMode(logging.ModeLSP)
		logging.SetDebugEnabled(cfg.Verbose)
		logging.Debug("Starting server with transport %s", cfg.Transport.Kind)

		state := server.New(cfg)
		srv := transport.New(state)
		defer srv.Close()

		watch, _ := cmd.Flags().GetBool("watch")
		if watch {
			watcher, err := startFileWatcher(cfg, state, srv)
			if err != nil {
				return fmt.Errorf("start file watcher: %w", err)
			}
			defer watcher.Close()
		}

		return srv.Run()
	},
}

// startFileWatcher watches the source_root directory itself (fsnotify does
// not descend into subdirectories) and, on create/write of
// a .dyn/.dyni file, synthesizes a TypeCheckRequest through srv's
// serialized Dispatch. It also marks the connection's file notifiers as
// active, so SaveDocument at the LSP layer (§4.4) defers to this watcher
// instead of double-checking on every save.
func startFileWatcher(cfg *config.Config, state *server.ServerState, srv *transport.Server) (*platform.FSNotifyFileWatcher, error) {
	watcher, err := platform.NewFSNotifyFileWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(cfg.SourceRoot); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", cfg.SourceRoot, err)
	}
	state.SetFileNotifiers([]string{"fsnotify"})

	go func() {
		for event := range watcher.Events() {
			if event.Op&(platform.Create|platform.Write) == 0 {
				continue
			}
			handleWatchEvent(cfg, srv, event.Name)
		}
	}()
	go func() {
		for err := range watcher.Errors() {
			logging.Warning("file watcher: %v", err)
		}
	}()

	return watcher, nil
}

func handleWatchEvent(cfg *config.Config, srv *transport.Server, absPath string) {
	if ext := filepath.Ext(absPath); ext != sourcefile.SourceExtension && ext != sourcefile.StubExtension {
		return
	}
	rel, err := filepath.Rel(cfg.SourceRoot, absPath)
	if err != nil {
		return
	}

	if _, err := srv.Dispatch(server.TypeCheckRequest{
		UpdateEnvironmentWith: []string{rel},
		Check:                 []string{rel},
	}); err != nil {
		logging.Warning("file watcher: recheck of %s failed: %v", rel, err)
	}
}

// loadConfig builds a *config.Config from viper's bound flags/env/config
// file, rooted at the project directory root.go's initConfig resolved.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	cfg.ProjectDir = viper.GetString("projectDir")
	cfg.ConfigFile = viper.GetString("configFile")
	cfg.Verbose = viper.GetBool("verbose")
	cfg.SourceRoot = cfg.ProjectDir

	if viper.IsSet("transport.kind") {
		cfg.Transport.Kind = config.TransportKind(viper.GetString("transport.kind"))
	}
	if viper.IsSet("transport.address") {
		cfg.Transport.Address = viper.GetString("transport.address")
	}
	if viper.IsSet("scheduler.parallelThreshold") {
		cfg.Scheduler.ParallelThreshold = viper.GetInt("scheduler.parallelThreshold")
	}
	if viper.IsSet("heap.compactionRatio") {
		cfg.Heap.CompactionRatio = viper.GetFloat64("heap.compactionRatio")
	}
	if viper.IsSet("heap.maxBytes") {
		cfg.Heap.MaxBytes = viper.GetInt64("heap.maxBytes")
	}
	return cfg, nil
}

// applyTransportFlags overlays the serve command's boolean transport flags
// and --address onto cfg, rejecting more than one transport flag.
func applyTransportFlags(cmd *cobra.Command, cfg *config.Config) error {
	stdioFlag, _ := cmd.Flags().GetBool("stdio")
	tcpFlag, _ := cmd.Flags().GetBool("tcp")
	websocketFlag, _ := cmd.Flags().GetBool("websocket")
	address, _ := cmd.Flags().GetString("address")

	count := 0
	if stdioFlag {
		cfg.Transport.Kind = config.TransportStdio
		count++
	}
	if tcpFlag {
		cfg.Transport.Kind = config.TransportTCP
		count++
	}
	if websocketFlag {
		cfg.Transport.Kind = config.TransportWebSocket
		count++
	}
	if count > 1 {
		return fmt.Errorf("only one transport flag may be specified")
	}
	if address != "" {
		cfg.Transport.Address = address
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("stdio", false, "Use stdio transport (default)")
	serveCmd.Flags().Bool("tcp", false, "Use length-framed TCP transport")
	serveCmd.Flags().Bool("websocket", false, "Use WebSocket transport")
	serveCmd.Flags().String("address", "", "Listen address for tcp/websocket transports (e.g. localhost:7737)")
	serveCmd.Flags().Bool("watch", false, "Watch source_root and recheck files on change instead of relying on editor save/LSP events")
}

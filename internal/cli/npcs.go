package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cory-johannsen/mudclient/internal/frontend/render"
	"github.com/cory-johannsen/mudclient/internal/npc"
)

// NewNPCsCmd creates the npcs command, which lists or autocompletes the NPC directory file.
func NewNPCsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "npcs [@prefix]",
		Short: "List the NPCs in a directory file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			if path == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				path = cfg.Session.NPCFile
			}
			if path == "" {
				return fmt.Errorf("no NPC file: pass --file or set session.npc_file")
			}
			dir, err := npc.LoadDirectory(path)
			if err != nil {
				return err
			}

			r := render.NewRenderer(false, "", nil)
			if len(args) == 0 {
				fmt.Fprint(cmd.OutOrStdout(), r.Directory(dir))
				return nil
			}
			s := npc.Suggest(args[0], dir)
			if !s.Active() {
				fmt.Fprintln(cmd.OutOrStdout(), "no matches")
				return nil
			}
			for _, m := range s.Matches {
				fmt.Fprintln(cmd.OutOrStdout(), m.Name)
			}
			return nil
		},
	}
	cmd.Flags().String("file", "", "NPC directory YAML file (defaults to session.npc_file)")
	return cmd
}

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Warm the hot index from the durable store",
		Long:  "Rebuilds the in-memory vector index from records inside the hot window.",
		Run:   runWarm,
	}

	RootCmd.AddCommand(cmd)
}

func runWarm(cmd *cobra.Command, args []string) {
	comps, err := openComponents()
	if err != nil {
		exitErr("open components", err)
	}
	defer comps.Close()

	loaded, err := comps.index.WarmStart(cmd.Context())
	if err != nil {
		exitErr("warm start", err)
	}
	fmt.Printf("loaded %d records\n", loaded)

	b, _ := json.MarshalIndent(comps.index.Metrics(), "", "  ")
	fmt.Println(string(b))
}

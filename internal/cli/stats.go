package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aurorahq/echomem/internal/hotindex"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store and index statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

type statsOutput struct {
	DBPath      string           `json:"db_path"`
	StoredTotal int              `json:"stored_total"`
	DLQPending  int              `json:"dlq_pending"`
	HotIndex    hotindex.Metrics `json:"hot_index"`
}

func runStats(cmd *cobra.Command, args []string) {
	comps, err := openComponents()
	if err != nil {
		exitErr("open components", err)
	}
	defer comps.Close()

	count, err := comps.store.Count(cmd.Context())
	if err != nil {
		exitErr("count records", err)
	}
	pending, err := comps.queue.List()
	if err != nil {
		exitErr("list dlq", err)
	}

	out := statsOutput{
		DBPath:      comps.cfg.DBPath,
		StoredTotal: count,
		DLQPending:  len(pending),
		HotIndex:    comps.index.Metrics(),
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}

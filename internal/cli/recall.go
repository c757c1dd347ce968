package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall [query]",
		Short: "Recall memories by similarity",
		Long:  "Embeds the query and searches the hot index. Warms the index from the store first.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRecall,
	}

	cmd.Flags().IntP("topk", "k", 0, "Max results (default: configured topk)")

	RootCmd.AddCommand(cmd)
}

type recallHit struct {
	ConvID string  `json:"conv_id"`
	Turn   int     `json:"turn"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

func runRecall(cmd *cobra.Command, args []string) {
	topK, _ := cmd.Flags().GetInt("topk")
	query := strings.Join(args, " ")

	comps, err := openComponents()
	if err != nil {
		exitErr("open components", err)
	}
	defer comps.Close()

	if topK <= 0 {
		topK = comps.cfg.TopK
	}
	if _, err := comps.index.WarmStart(cmd.Context()); err != nil {
		exitErr("warm start", err)
	}

	results, err := comps.proc.Recall(cmd.Context(), query, topK)
	if err != nil {
		exitErr("recall", err)
	}
	if len(results) == 0 {
		fmt.Println("[]")
		return
	}

	hits := make([]recallHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, recallHit{
			ConvID: r.Record.ConvID,
			Turn:   r.Record.Turn,
			Text:   r.Record.RawText,
			Score:  r.Score,
		})
	}
	b, _ := json.MarshalIndent(hits, "", "  ")
	fmt.Println(string(b))
}

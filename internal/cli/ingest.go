package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aurorahq/echomem/internal/webhook"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Ingest a webhook payload from a file or stdin",
		Long:  "Runs a raw webhook body through the full pipeline: verify, chunk, embed, store, index.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runIngest,
	}

	cmd.Flags().String("signature", "", "Webhook signature header to verify against")
	cmd.Flags().Bool("sign", false, "Sign the body with the configured secret before processing")

	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	var body []byte
	var err error
	if len(args) == 1 {
		body, err = os.ReadFile(args[0])
	} else {
		body, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		exitErr("read payload", err)
	}

	comps, err := openComponents()
	if err != nil {
		exitErr("open components", err)
	}
	defer comps.Close()

	signature, _ := cmd.Flags().GetString("signature")
	if sign, _ := cmd.Flags().GetBool("sign"); sign {
		if comps.cfg.WebhookSecret == "" {
			exitErr("sign payload", fmt.Errorf("no webhook secret configured"))
		}
		signature = webhook.Sign(body, comps.cfg.WebhookSecret, time.Now())
	}

	result, err := comps.proc.Process(cmd.Context(), body, signature)
	if err != nil {
		exitErr("ingest", err)
	}

	b, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(b))
}

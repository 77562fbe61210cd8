package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/source-matcher/internal/model"
)

var matchFile string

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Reconcile a single request file against the configured services",
	RunE: func(cmd *cobra.Command, args []string) error {
		env := initEngine(cfg)
		defer env.Close()

		return runMatch(cmd, env.Engine, matchFile, cmd.OutOrStdout())
	},
}

// runMatch decodes the request at path, runs it and prints the envelope.
func runMatch(cmd *cobra.Command, engine reconciler, path string, out io.Writer) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrap(err, "read request file")
	}
	req, err := model.DecodeRequest(b)
	if err != nil {
		return eris.Wrap(err, "decode request file")
	}

	resp := engine.Run(cmd.Context(), req)
	zap.L().Info("match complete",
		zap.String("uid", req.UID()),
		zap.String("status", resp.Status),
		zap.String("status_message", resp.StatusMessage),
	)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func init() {
	matchCmd.Flags().StringVar(&matchFile, "file", "", "request JSON file (required)")
	_ = matchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(matchCmd)
}

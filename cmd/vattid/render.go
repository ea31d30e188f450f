package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ebi-gdp/vattid/pkg/config"
	"github.com/ebi-gdp/vattid/pkg/messages"
	"github.com/ebi-gdp/vattid/pkg/resources"
)

// renderCmd is a debugging aid: it renders the chart values document for a
// single launch message without talking to the bus, the store, or any
// cloud API, so a values.yaml can be inspected by hand.
var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render chart values for a launch message, for debugging",
	RunE:  runRender,
}

func init() {
	renderCmd.Flags().String("message-path", "", "Path to a JSON launch message")
	renderCmd.Flags().String("env-path", "", "Path to a .env file providing the settings this message needs")
	renderCmd.Flags().String("bucket-name", "", "Bucket name used for both the work and results buckets")
	renderCmd.Flags().String("out-path", "", "Path to write the rendered values.yaml to")
	_ = renderCmd.MarkFlagRequired("message-path")
	_ = renderCmd.MarkFlagRequired("env-path")
	_ = renderCmd.MarkFlagRequired("bucket-name")
	_ = renderCmd.MarkFlagRequired("out-path")
}

func runRender(cmd *cobra.Command, args []string) error {
	messagePath, _ := cmd.Flags().GetString("message-path")
	envPath, _ := cmd.Flags().GetString("env-path")
	bucketName, _ := cmd.Flags().GetString("bucket-name")
	outPath, _ := cmd.Flags().GetString("out-path")

	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("render: load env file %s: %w", envPath, err)
	}

	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("render: load settings: %w", err)
	}

	raw, err := os.ReadFile(messagePath)
	if err != nil {
		return fmt.Errorf("render: read message %s: %w", messagePath, err)
	}

	var req messages.JobRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("render: decode message: %w", err)
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("render: validate message: %w", err)
	}

	values, err := resources.Render(req, bucketName, bucketName, settings)
	if err != nil {
		return fmt.Errorf("render: render chart values: %w", err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("render: create %s: %w", outPath, err)
	}
	defer out.Close()

	enc := yaml.NewEncoder(out)
	if err := enc.Encode(values); err != nil {
		return fmt.Errorf("render: encode values: %w", err)
	}
	return enc.Close()
}

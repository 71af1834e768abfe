package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"sfstory/publisher"
)

var generateFlags struct {
	topic  string
	outDir string
}

var generateCmd = &cobra.Command{
	Use:   "generate [topic]",
	Short: "Generate one story outline for a topic",
	Long: `Generate one story outline. The outline is written to
story_outline_<topic>.txt and the generated world model to ap_model_<topic>.json
in the output directory; the outline is also printed to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&generateFlags.topic, "topic", "", "Technology or concept to extrapolate")
	f.StringVarP(&generateFlags.outDir, "output", "o", ".", "Output directory")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	topic := generateFlags.topic
	if topic == "" && len(args) > 0 {
		topic = args[0]
	}
	if strings.TrimSpace(topic) == "" {
		return fmt.Errorf("topic is required\n\nUsage: sfstory generate <topic>")
	}

	a, err := setup(cmd)
	if err != nil {
		return err
	}
	sink, err := publisher.NewDirSink(generateFlags.outDir)
	if err != nil {
		return err
	}
	pub, err := publisher.New(sink, rootFlags.html)
	if err != nil {
		return err
	}

	a.logger.Info("generating story", "topic", topic)
	res, runErr := a.pipeline.Run(cmd.Context(), topic)
	if res == nil {
		return runErr
	}
	out, err := pub.Publish(res)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		a.logger.Warn("run warning", "warning", w.String())
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintln(cmd.OutOrStdout(), res.Outline)
	fmt.Fprintf(cmd.ErrOrStderr(), "\nOutline: %s\n", filepath.Clean(out.Outline))
	if missing := res.MissingElements(); len(missing) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Missing elements: %s\n", strings.Join(missing, ", "))
	}
	return nil
}

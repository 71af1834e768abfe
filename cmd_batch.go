package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sfstory/batch"
	"sfstory/publisher"
)

var batchFlags struct {
	themes  []string
	stories int
	outDir  string
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Generate many outlines per theme",
	Long: `Generate --stories independent outlines for every --theme. Each theme gets a
folder <Theme>_A<agents>_I<iterations> under the output directory with one
<Theme>_story_<NN>.txt per story. Failed stories are logged and counted.`,
	Example: `  sfstory batch --theme "Grocery Store" --theme Soccer --stories 10`,
	RunE:    runBatch,
}

func init() {
	f := batchCmd.Flags()
	f.StringArrayVar(&batchFlags.themes, "theme", nil, "Theme to generate (repeatable)")
	f.IntVar(&batchFlags.stories, "stories", 10, "Stories per theme")
	f.StringVarP(&batchFlags.outDir, "output", "o", "", "Output root (default: config output_dir)")
	_ = batchCmd.MarkFlagRequired("theme")
}

func runBatch(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	root := batchFlags.outDir
	if root == "" {
		root = a.cfg.OutputDir
	}
	sink, err := publisher.NewDirSink(root)
	if err != nil {
		return err
	}
	runner, err := batch.New(a.pipeline, sink, a.cfg.MaxConcurrentStories)
	if err != nil {
		return err
	}

	sum, err := runner.Run(cmd.Context(), batchFlags.themes, batchFlags.stories)
	for _, t := range sum.Themes {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d succeeded, %d failed (%s)\n", t.Theme, t.Succeeded, t.Failed, t.Dir)
	}
	if err != nil {
		return err
	}
	if sum.Succeeded() == 0 && sum.Failed() > 0 {
		return fmt.Errorf("all %d stories failed", sum.Failed())
	}
	return nil
}

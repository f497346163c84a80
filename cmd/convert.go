package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var convertFlags convFlags

var convertCmd = &cobra.Command{
	Use:   "convert <input> <output>",
	Short: "Convert one image between containers",
	Long: `Decodes the input into the uniform representation, applying the
target format, size and frame options, and encodes it into the container
named by the output extension.`,
	Args: cobra.ExactArgs(2),
	RunE: runConvert,
}

func init() {
	convertFlags.register(convertCmd)
	rootCmd.AddCommand(convertCmd)
}

func runConvert(_ *cobra.Command, args []string) error {
	opts, err := convertFlags.options()
	if err != nil {
		return err
	}
	img, src, err := loadFile(args[0], opts)
	if err != nil {
		return err
	}
	defer img.Dispose()
	logVerbose("loaded %s", describe(img.Descriptor))

	dst, err := saveFile(args[1], img, opts)
	if err != nil {
		return err
	}
	fmt.Printf("  %s (%s) -> %s (%s): %s\n", args[0], src.Kind(), args[1], dst.Kind(), describe(img.Descriptor))
	return nil
}

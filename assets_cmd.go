package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	assetsStatus bool

	assetsCmd = &cobra.Command{
		Use:   "assets",
		Short: "Download the Kokoro model files",
		Long: paragraph(fmt.Sprintf("\n%s the Kokoro model (%s) and voice bank (%s) if they are missing. "+
			"Use --status to see what would be downloaded.", keyword("Download"), "kokoro-v0_19.onnx", "voices.bin")),
		Example: paragraph("narrate assets\nnarrate assets --status"),
		Args:    cobra.NoArgs,
		RunE:    runAssets,
	}
)

func runAssets(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	modelPath, voicesPath := cfg.Models.ModelFiles()
	p := newProvisioner()

	if assetsStatus {
		statuses, err := p.Status(cmd.Context(), modelPath, voicesPath)
		if err != nil {
			return err
		}
		var missing int64
		for _, st := range statuses {
			switch {
			case st.Present:
				fmt.Printf("%s %s %s\n", okMark, st.Path, faint(humanize.Bytes(uint64(st.LocalSize))))
			case st.RemoteSize >= 0:
				missing += st.RemoteSize
				fmt.Printf("%s %s %s\n", failMark, st.Path, faint("missing, "+humanize.Bytes(uint64(st.RemoteSize))+" to download"))
			default:
				fmt.Printf("%s %s %s\n", failMark, st.Path, faint("missing, size unknown"))
			}
		}
		if missing > 0 {
			fmt.Printf("\n%s will be downloaded from %s\n", humanize.Bytes(uint64(missing)), p.URL(""))
		}
		return nil
	}

	pair, err := p.EnsureAssets(cmd.Context(), modelPath, voicesPath)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n%s %s\n", okMark, pair.ModelPath, okMark, pair.VoicesPath)
	return nil
}

func init() {
	assetsCmd.Flags().BoolVarP(&assetsStatus, "status", "s", false, "show which files are present without downloading")
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"zsxqsync/pkg/config"
	"zsxqsync/pkg/dataset"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <group>",
	Short: "Export a group's SQLite dataset to XLSX",
	Long: `Write every topic of a group's SQLite dataset to an XLSX workbook with the
columns topic_id, author, title, date, content, images, files.

The group is matched by id or name.`,
	Example: `  zsxqsync export notes
  zsxqsync export 51122858222824 -o backup.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output path (default zsxq-<group>.xlsx in the dataset directory)")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		return err
	}

	group, ok := findGroup(cfg, args[0])
	if !ok {
		return fmt.Errorf("group %q is not configured", args[0])
	}

	if strings.EqualFold(cfg.Storage.DatasetFormat, config.FormatXLSX) {
		return fmt.Errorf("group %s already writes an XLSX dataset", group.Name)
	}

	dbPath := filepath.Join(cfg.Storage.DatasetDir, dataset.FileName(group.Name, config.FormatSQLite))
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("no dataset for group %s: %w", group.Name, err)
	}

	src, err := dataset.OpenSQLite(dbPath)
	if err != nil {
		return err
	}
	defer src.Close()

	out := exportOutput
	if out == "" {
		out = filepath.Join(cfg.Storage.DatasetDir, dataset.FileName(group.Name, config.FormatXLSX))
	}

	n, err := dataset.ExportXLSX(cmd.Context(), src, out)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d topics to %s\n", n, out)
	return nil
}

func findGroup(cfg *config.Config, key string) (config.GroupConfig, bool) {
	for _, g := range cfg.Groups {
		if g.ID == key || strings.EqualFold(g.Name, key) {
			return g, true
		}
	}
	return config.GroupConfig{}, false
}
